package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/codec"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const usage = `Usage: admin <command> [args]

Commands:
  genkey                      print a new random 256-bit encryption key (hex)
  token <user_id> [ttl]       issue a WebSocket token, ttl like 24h
  history <user_a> <user_b>   print the decrypted conversation of a pair
  last <user_a> <user_b>      print the most recent message of a pair`

var errUsage = errors.New("invalid arguments")

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	if err := runCommand(context.Background(), os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Println(usage)
			os.Exit(1)
		}
		log.Fatalf("Error: %v", err)
	}
}

func runCommand(ctx context.Context, command string, args []string, out io.Writer) error {
	if command == "genkey" {
		return genKey(out)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	switch command {
	case "token":
		if !cfg.AuthEnabled() {
			return errors.New("AUTH_JWT_SECRET is not set")
		}
		return issueToken(auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), args, out)

	case "history", "last":
		if len(args) != 2 {
			return errUsage
		}
		c, err := codec.New(cfg.Encryption.Key, cfg.Encryption.Algorithm)
		if err != nil {
			return err
		}
		db, err := storage.OpenDatabase(cfg.Database)
		if err != nil {
			return err
		}
		store := storage.NewStorageService(db, nil, "")

		if command == "history" {
			return printHistory(ctx, store, c, args[0], args[1], out)
		}
		return printLast(ctx, store, c, args[0], args[1], out)
	}

	return errUsage
}

func genKey(out io.Writer) error {
	key, err := codec.GenerateKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hex.EncodeToString(key))
	return err
}

func issueToken(issuer *auth.Issuer, args []string, out io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	if len(args) == 2 {
		ttl, err := time.ParseDuration(args[1])
		if err != nil || ttl <= 0 {
			return fmt.Errorf("invalid ttl %q", args[1])
		}
		issuer = issuer.WithTTL(ttl)
	}

	token, err := issuer.Issue(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func printHistory(ctx context.Context, store storage.MessageStore, c *codec.Codec, a, b string, out io.Writer) error {
	rows, err := store.History(ctx, a, b)
	if err != nil {
		return err
	}

	for i := range rows {
		plaintext, err := c.Decrypt(rows[i].Ciphertext, rows[i].Nonce)
		if err != nil {
			fmt.Fprintf(out, "#%d %s <undecryptable: %v>\n", rows[i].ID, rows[i].CreatedAt.Format(time.RFC3339), err)
			continue
		}
		printLine(out, &rows[i], string(plaintext))
	}
	fmt.Fprintf(out, "%d message(s)\n", len(rows))
	return nil
}

func printLast(ctx context.Context, store storage.MessageStore, c *codec.Codec, a, b string, out io.Writer) error {
	msg, err := chathub.NewLastMessageResolver(store, c).Get(ctx, a, b)
	if err != nil {
		return err
	}
	if msg == nil {
		_, err = fmt.Fprintln(out, "no messages")
		return err
	}

	printLine(out, &models.Message{ID: msg.ID, SenderID: msg.SenderID, ReceiverID: msg.ReceiverID, ReplyTo: msg.ReplyTo, CreatedAt: msg.Timestamp}, msg.Plaintext)
	return nil
}

func printLine(out io.Writer, row *models.Message, text string) {
	reply := ""
	if row.ReplyTo != nil {
		reply = fmt.Sprintf(" (reply to #%d)", *row.ReplyTo)
	}
	fmt.Fprintf(out, "#%d %s %s -> %s%s: %s\n",
		row.ID, row.CreatedAt.Format(time.RFC3339), row.SenderID, row.ReceiverID, reply, text)
}
