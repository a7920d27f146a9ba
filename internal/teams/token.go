package teams

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// InviteToken is the secret carried by an invitation link: "sdi_" followed
// by 32 random bytes in unpadded base64url. Only Hash is persisted.
type InviteToken string

const (
	inviteTokenPrefix  = "sdi_"
	inviteTokenEntropy = 32
)

var inviteTokenEncoding = base64.RawURLEncoding

// NewInviteToken draws a fresh token from crypto/rand.
func NewInviteToken() (InviteToken, error) {
	secret := make([]byte, inviteTokenEntropy)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return InviteToken(inviteTokenPrefix + inviteTokenEncoding.EncodeToString(secret)), nil
}

// ParseInviteToken accepts only strings NewInviteToken could have produced.
// Anything else is rejected before a database lookup.
func ParseInviteToken(raw string) (InviteToken, bool) {
	body, ok := strings.CutPrefix(raw, inviteTokenPrefix)
	if !ok || inviteTokenEncoding.DecodedLen(len(body)) != inviteTokenEntropy {
		return "", false
	}
	if _, err := inviteTokenEncoding.DecodeString(body); err != nil {
		return "", false
	}
	return InviteToken(raw), true
}

// Hash is the SHA-256 digest stored in team_invitations.token_hash.
func (t InviteToken) Hash() []byte {
	sum := sha256.Sum256([]byte(t))
	return sum[:]
}
