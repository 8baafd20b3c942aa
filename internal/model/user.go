package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	User struct {
		ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		Phone    string             `bson:"phone" json:"phone"`
		Password string             `bson:"password" json:"-"`
		Name     string             `bson:"name" json:"name"`
		Bio      string             `bson:"bio,omitempty" json:"bio,omitempty"`
		Avatar   string             `bson:"avatar,omitempty" json:"profilePic,omitempty"`

		PublicKey string `bson:"publicKey" json:"publicKey"`
		// Key backup: private key wrapped under the user's password.
		// Populated lazily on first login if missing.
		EncryptedPrivateKey string `bson:"encryptedPrivateKey,omitempty" json:"encryptedPrivateKey,omitempty"`
		KeyIV               string `bson:"keyIV,omitempty" json:"keyIV,omitempty"`

		LastSeen time.Time `bson:"lastSeen,omitempty" json:"lastSeen,omitempty"`
		Blocked  []string  `bson:"blocked,omitempty" json:"blocked,omitempty"`
	}
)

// Profile is the directory view of a user: everything a counterpart needs
// to resolve keys and render a contact, nothing secret except the owner's
// own wrapped backup.
type Profile struct {
	ID                  string    `json:"id"`
	Phone               string    `json:"phone"`
	Name                string    `json:"name"`
	Avatar              string    `json:"profilePic,omitempty"`
	PublicKey           string    `json:"publicKey"`
	EncryptedPrivateKey string    `json:"encryptedPrivateKey,omitempty"`
	KeyIV               string    `json:"keyIV,omitempty"`
	LastSeen            time.Time `json:"lastSeen,omitempty"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:                  u.ID.Hex(),
		Phone:               u.Phone,
		Name:                u.Name,
		Avatar:              u.Avatar,
		PublicKey:           u.PublicKey,
		EncryptedPrivateKey: u.EncryptedPrivateKey,
		KeyIV:               u.KeyIV,
		LastSeen:            u.LastSeen,
	}
}

func (u *User) HasBlocked(userID string) bool {
	for _, b := range u.Blocked {
		if b == userID {
			return true
		}
	}
	return false
}
