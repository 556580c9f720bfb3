package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fbharvest/pkg/auth"
)

var (
	authTokens string
	authExpiry string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored access tokens",
}

var authStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Store access tokens in the system keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		var tokens []string
		for _, t := range strings.Split(authTokens, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tokens = append(tokens, t)
			}
		}
		set := &auth.TokenSet{Tokens: tokens}
		if authExpiry != "" {
			expiry, err := time.Parse("2006-01-02", authExpiry)
			if err != nil {
				return fmt.Errorf("parsing expiry: %w", err)
			}
			set.Expiry = expiry
		}
		if err := auth.NewManager().Store(set); err != nil {
			return err
		}
		fmt.Printf("Stored %d token(s)\n", len(tokens))
		return nil
	},
}

var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored token status",
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := auth.NewManager().Retrieve()
		if err != nil {
			return err
		}
		fmt.Printf("Tokens: %d\n", len(set.Tokens))
		if !set.Expiry.IsZero() {
			status := "valid"
			if set.Expired() {
				status = "EXPIRED"
			}
			fmt.Printf("Expiry: %s (%s)\n", set.Expiry.Format("2006-01-02"), status)
		}
		return nil
	},
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored access tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.NewManager().Delete(); err != nil {
			return err
		}
		fmt.Println("Tokens removed")
		return nil
	},
}

func init() {
	authStoreCmd.Flags().StringVar(&authTokens, "tokens", "", "comma-separated access tokens")
	authStoreCmd.Flags().StringVar(&authExpiry, "expiry", "", "token expiry date (YYYY-MM-DD)")
	authStoreCmd.MarkFlagRequired("tokens")

	authCmd.AddCommand(authStoreCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authClearCmd)
}
