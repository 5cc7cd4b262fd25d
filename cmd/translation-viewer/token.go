package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voice-translation-viewer/internal/room"
)

var (
	tokenUserType string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development join token from LIVEKIT_API_KEY and LIVEKIT_API_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		userType := tokenUserType
		if userType == "" {
			userType = cfg.LiveKit.UserType
		}
		tok, err := room.MintToken(room.TokenRequest{
			APIKey:    cfg.LiveKit.APIKey,
			APISecret: cfg.LiveKit.APISecret,
			Room:      cfg.LiveKit.Room,
			Identity:  cfg.LiveKit.Identity,
			Name:      cfg.LiveKit.Name,
			Attributes: map[string]string{
				room.AttrUserType:              userType,
				room.AttrTranscriptionLanguage: cfg.Session.CaptionsLanguage,
				room.AttrShouldForward:         "true",
			},
			ValidFor: tokenTTL,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserType, "user-type", "", "host or listener (default LIVEKIT_USER_TYPE)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 6*time.Hour, "token validity")
	rootCmd.AddCommand(tokenCmd)
}
