package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const authTimeout = 15 * time.Second

func loginCmd() *cobra.Command {
	var username string
	var password string
	var remember bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the server",
		Long: `Log in with username and password. The password never leaves the
machine in plaintext; only a salted digest is sent. With --remember the
session survives restarts via the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			if username == "" {
				username, err = promptLine("Username: ")
				if err != nil {
					return err
				}
			}
			if password == "" {
				password, err = promptPassword("Password: ")
				if err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
			defer cancel()

			sess, err := a.sessions.Login(ctx, username, password, remember)
			if err != nil {
				return err
			}

			color.Green("✓ Logged in as %s", sess.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted if omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if omitted)")
	cmd.Flags().BoolVarP(&remember, "remember", "r", true, "Persist the session across restarts")
	return cmd
}

func registerCmd() *cobra.Command {
	var username string
	var email string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			if username == "" {
				username, err = promptLine("Username: ")
				if err != nil {
					return err
				}
			}
			if email == "" {
				email, err = promptLine("Email: ")
				if err != nil {
					return err
				}
			}
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Confirm password: ")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
			defer cancel()

			sess, err := a.sessions.Register(ctx, username, email, password, confirm)
			if err != nil {
				return err
			}

			color.Green("✓ Account created, logged in as %s", sess.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted if omitted)")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email (prompted if omitted)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			if err := a.sessions.Logout(); err != nil {
				return err
			}
			color.Green("✓ Logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			sess := a.sessions.Current()
			if !sess.Authenticated() {
				fmt.Println("Not logged in")
				return nil
			}

			fmt.Printf("Username:  %s\n", sess.Username)
			if sess.Email != "" {
				fmt.Printf("Email:     %s\n", sess.Email)
			}
			fmt.Printf("Server:    %s\n", a.serverURL())
			fmt.Printf("Logged in: %s\n", sess.IssuedAt.Format(time.RFC1123))

			ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
			defer cancel()
			if a.sessions.Validate(ctx) {
				color.Green("Session:   valid")
			} else {
				color.Red("Session:   expired, run 'llmwatch login'")
			}
			return nil
		},
	}
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	var line string
	if _, err := fmt.Scanln(&line); err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}
