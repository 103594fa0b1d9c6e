// Demo CLI for the Eldercare chat client: logs in, opens a conversation,
// prints incoming events and sends lines typed on stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/provsalt/eldercare/clients/go/eldercare"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Eldercare server base URL")
	email := flag.String("email", "", "Account email")
	password := flag.String("password", "", "Account password")
	chatID := flag.String("chat", "", "Conversation ID to open (defaults to the most recent)")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Usage: chat -email <email> -password <password> [-server <url>] [-chat <id>]")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := eldercare.NewClient(*server)
	login, err := client.Login(ctx, *email, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("logged in as %s (%s)\n", login.Name, login.ID)

	target := *chatID
	if target == "" {
		chats, err := client.ListChats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list chats failed: %v\n", err)
			os.Exit(1)
		}
		if len(chats) == 0 {
			fmt.Fprintln(os.Stderr, "no conversations; start one with -chat or the API")
			os.Exit(1)
		}
		target = chats[0].ID
	}

	view := eldercare.NewConversationView(client, target)
	if err := view.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "load messages failed: %v\n", err)
		os.Exit(1)
	}
	for _, m := range view.Messages() {
		fmt.Printf("[%s] %s\n", m.Sender, m.Msg)
	}

	sub, err := client.Subscribe(ctx, func(evt eldercare.ChatEvent) {
		view.ApplyEvent(evt)
		if evt.Type == eldercare.EventMessageCreated && evt.Sender != client.UserID() {
			fmt.Printf("[%s] %s\n", evt.Sender, evt.Message)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe failed: %v\n", err)
		os.Exit(1)
	}
	defer sub.Close()

	if err := sub.Join(target); err != nil {
		fmt.Fprintf(os.Stderr, "join failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("type a message and press enter (ctrl-d to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		body := scanner.Text()
		if body == "" {
			continue
		}
		if err := view.Send(ctx, body); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
}
