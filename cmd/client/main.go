package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"ephemsg/internal/config"
	"ephemsg/internal/model"
	"ephemsg/internal/service/app"
	"ephemsg/internal/utils/log"
)

func main() {
	host := flag.String("host", "localhost:9090", "gateway host:port")
	keyDir := flag.String("keys", ".", "directory for the local key file")
	flag.Parse()

	if flag.NArg() < 3 {
		fmt.Fprintln(os.Stderr, "usage: client [-host addr] [-keys dir] <phone> <password> <peer-phone>")
		os.Exit(2)
	}
	phone, password, peer := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	cfg := config.Load()
	log.Init(cfg.LogLevel)
	defer log.Sync()

	a := app.NewApp(*host, *keyDir, phone)
	a.OnMessage = func(senderID, text string, msg model.Message) {
		fmt.Printf("<%s> %s\n", senderID, text)
	}
	a.OnStatus = func(u model.StatusUpdate) {
		fmt.Printf("-- message %s is now %s\n", u.MessageID, u.Status)
	}
	a.OnPresence = func(userID string, online bool) {
		state := "offline"
		if online {
			state = "online"
		}
		fmt.Printf("-- %s is %s\n", userID, state)
	}
	a.OnSendFailed = func(tag, content string) {
		fmt.Printf("-- send failed: %q\n", content)
	}

	ctx := context.Background()
	if err := a.Run(ctx, password); err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}
	defer a.Stop()

	fmt.Printf("logged in as %s (%s), chatting with %s\n", phone, a.UserID(), peer)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" {
			return
		}
		if _, err := a.SendText(ctx, peer, text); err != nil {
			fmt.Fprintln(os.Stderr, "send failed:", err)
		}
	}
}
