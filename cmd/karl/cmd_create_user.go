package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Interactively create a crawler/operator account",
	RunE:  runCreateUser,
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("username: ")
	name, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("karl: read username: %w", err)
	}
	name = strings.TrimSpace(name)

	fmt.Print("password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("karl: read password: %w", err)
	}

	id, err := a.f.CreateUser(context.Background(), name, string(passwordBytes))
	if err != nil {
		return err
	}
	fmt.Printf("created user %q (id %d)\n", name, int64(id))
	return nil
}
