package room

import (
	"errors"
	"time"

	"github.com/livekit/protocol/auth"
)

// Attribute keys read by the translation agent on connecting participants.
const (
	AttrUserType              = "user_type"
	AttrTranscriptionLanguage = "transcription_language"
	AttrShouldForward         = "should_forward_transcription"
)

// User types carried in AttrUserType.
const (
	UserTypeHost     = "host"
	UserTypeListener = "listener"
)

// TokenRequest describes a room join token.
type TokenRequest struct {
	APIKey     string
	APISecret  string
	Room       string
	Identity   string
	Name       string
	Attributes map[string]string
	ValidFor   time.Duration
}

// MintToken creates a join token for local development, when no token is
// handed to the viewer by the session's connection service.
func MintToken(req TokenRequest) (string, error) {
	if req.APIKey == "" || req.APISecret == "" {
		return "", errors.New("room: api key and secret are required to mint a token")
	}
	if req.Room == "" || req.Identity == "" {
		return "", errors.New("room: room and identity are required to mint a token")
	}
	if req.ValidFor <= 0 {
		req.ValidFor = time.Hour
	}

	at := auth.NewAccessToken(req.APIKey, req.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     req.Room,
	}
	at.AddGrant(grant).
		SetIdentity(req.Identity).
		SetName(req.Name).
		SetValidFor(req.ValidFor)
	if len(req.Attributes) > 0 {
		at.SetAttributes(req.Attributes)
	}
	return at.ToJWT()
}
