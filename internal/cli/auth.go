package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the platform and store the token pair locally",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the refresh tokens and clear stored credentials",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().String("email", "", "Account email (prompted if empty)")
	loginCmd.Flags().String("password", "", "Account password (prompted if empty)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	reader := bufio.NewReader(cmd.InOrStdin())
	var err error
	if email == "" {
		if email, err = prompt(reader, "Email: "); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = prompt(reader, "Password: "); err != nil {
			return err
		}
	}
	if email == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}

	logger := buildLogger(cmd)
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := buildClient(cmd, st, logger)
	if err != nil {
		return err
	}

	if _, err := client.Login(cmd.Context(), email, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	logger := buildLogger(cmd)
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := buildClient(cmd, st, logger)
	if err != nil {
		return err
	}

	// Clear local credentials even if the server-side revoke fails; a dead
	// session on the server is better than a stuck client.
	if err := client.Logout(cmd.Context()); err != nil {
		logger.WithError(err).Warn("server-side logout failed")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
