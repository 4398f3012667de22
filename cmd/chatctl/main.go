// chatctl exercises the chat data layer from the command line: register
// users, start conversations, send messages and watch the continuous
// feeds a client UI would render.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/trungdev/appchat-data/internal/data"
	"github.com/trungdev/appchat-data/internal/treestore"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: chatctl [-memory] <command> [args]

commands:
  register <first> <last>                  create the session user's record
  users                                    list the user directory
  create <peer-email> <peer-name> <text>   start a conversation with a first message
  send <conv-id> <peer-email> <peer-name> <text>
  read <conv-id>                           mark a conversation read
  delete <conv-id>                         delete own copy of a conversation
  watch                                    follow the session user's conversation list
  messages <conv-id>                       follow a conversation's message log

environment: CHAT_EMAIL, CHAT_NAME, MONGODB_URI, MONGODB_DATABASE
(also read from a .env file when present)
`)
	os.Exit(2)
}

func main() {
	// Optional .env file; real environment variables win.
	_ = godotenv.Load()

	memory := flag.Bool("memory", false, "use an in-process store instead of MongoDB")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	email := os.Getenv("CHAT_EMAIL")
	name := os.Getenv("CHAT_NAME")
	if email == "" || name == "" {
		log.Fatal("CHAT_EMAIL and CHAT_NAME must be set")
	}
	sess := data.Session{Email: email, Name: name}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store treestore.Store
	if *memory {
		store = treestore.NewMemoryStore()
	} else {
		uri := os.Getenv("MONGODB_URI")
		if uri == "" {
			log.Fatal("MONGODB_URI must be set (or pass -memory)")
		}
		database := os.Getenv("MONGODB_DATABASE")
		if database == "" {
			database = "appchat"
		}
		ms, err := treestore.NewMongoStore(ctx, uri, database)
		if err != nil {
			log.Fatalf("failed to connect to store: %v", err)
		}
		defer func() { _ = ms.Close(context.Background()) }()
		store = ms
	}

	// Modest per-user write budget so a scripting mistake can't hammer
	// one node.
	limiters := treestore.NewLimiterStore(120, 10, time.Minute)
	defer limiters.Stop()
	store = treestore.NewThrottledStore(store, limiters)

	users := data.NewUsersStore(store)
	msgs := data.NewMessagesStore(store)
	convs := data.NewConversationsStore(store, msgs)

	switch cmd, rest := args[0], args[1:]; cmd {
	case "register":
		if len(rest) != 2 {
			usage()
		}
		u := data.User{FirstName: rest[0], LastName: rest[1], Email: sess.Email}
		if err := users.InsertUser(ctx, u); err != nil {
			log.Fatalf("register failed: %v", err)
		}
		fmt.Printf("registered %s as %s\n", sess.Email, u.SafeEmail())

	case "users":
		list, err := users.GetAllUsers(ctx)
		if err != nil {
			log.Fatalf("users failed: %v", err)
		}
		for _, e := range list {
			fmt.Printf("%s\t%s\n", e.Email, e.Name)
		}

	case "create":
		if len(rest) != 3 {
			usage()
		}
		date, tm := nowStrings()
		first := data.Message{
			ID:      uuid.NewString(),
			Content: data.TextContent(rest[2]),
			Date:    date,
			Time:    tm,
		}
		id, err := convs.CreateConversation(ctx, sess, rest[0], rest[1], first)
		if err != nil {
			log.Fatalf("create failed: %v", err)
		}
		fmt.Println(id)

	case "send":
		if len(rest) != 4 {
			usage()
		}
		date, tm := nowStrings()
		msg := data.Message{
			ID:      uuid.NewString(),
			Content: data.TextContent(rest[3]),
			Date:    date,
			Time:    tm,
		}
		if err := convs.SendMessage(ctx, sess, rest[0], rest[1], rest[2], msg); err != nil {
			log.Fatalf("send failed: %v", err)
		}

	case "read":
		if len(rest) != 1 {
			usage()
		}
		if err := convs.MarkAsRead(ctx, sess, rest[0]); err != nil {
			log.Fatalf("read failed: %v", err)
		}

	case "delete":
		if len(rest) != 1 {
			usage()
		}
		if err := convs.DeleteConversation(ctx, sess, rest[0]); err != nil {
			log.Fatalf("delete failed: %v", err)
		}

	case "watch":
		ch, err := convs.ListConversations(ctx, sess.Email)
		if err != nil {
			log.Fatalf("watch failed: %v", err)
		}
		go func() {
			for snap := range ch {
				if snap.Err != nil {
					log.Printf("watch: %v", snap.Err)
					continue
				}
				fmt.Printf("--- %d conversation(s) ---\n", len(snap.Conversations))
				for _, c := range snap.Conversations {
					marker := " "
					if !c.LatestMessage.IsRead {
						marker = "*"
					}
					fmt.Printf("%s %s  %s: %s (%s %s)\n", marker, c.ID, c.Name,
						c.LatestMessage.Text, c.LatestMessage.Date, c.LatestMessage.Time)
				}
			}
		}()
		waitForInterrupt(cancel)

	case "messages":
		if len(rest) != 1 {
			usage()
		}
		ch, err := msgs.GetMessages(ctx, rest[0])
		if err != nil {
			log.Fatalf("messages failed: %v", err)
		}
		go func() {
			for snap := range ch {
				if snap.Err != nil {
					log.Printf("messages: %v", snap.Err)
					continue
				}
				fmt.Printf("--- %d message(s) ---\n", len(snap.Messages))
				for _, m := range snap.Messages {
					fmt.Printf("[%s %s] %s: %s\n", m.Date, m.Time, m.SenderEmail, renderContent(m.Content))
				}
			}
		}()
		waitForInterrupt(cancel)

	default:
		usage()
	}
}

// waitForInterrupt blocks until SIGINT/SIGTERM, then cancels the
// observation context so the feed goroutine drains and stops.
func waitForInterrupt(cancel context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	cancel()
}

func nowStrings() (date, tm string) {
	now := time.Now()
	return now.Format("02/01/2006"), now.Format("15:04")
}

func renderContent(c data.Content) string {
	switch c.Kind {
	case data.KindText:
		return c.Text
	case data.KindPhoto, data.KindVideo:
		return fmt.Sprintf("[%s] %s", c.Kind, c.URL)
	case data.KindLocation:
		return fmt.Sprintf("[location] %v,%v", c.Longitude, c.Latitude)
	default:
		return fmt.Sprintf("[unsupported %s]", c.Kind)
	}
}
