package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/generation"
	"github.com/go-go-golems/parley/pkg/manager"
	"github.com/go-go-golems/parley/pkg/registry"
)

var quickActions = []string{
	"What should I eat for breakfast? 🥗",
	"Calculate my daily calories 📊",
	"Suggest a healthy snack 🍎",
	"Plan my weekly meals 📅",
}

func buildGenerator() (generation.Generator, error) {
	switch viper.GetString("generator") {
	case "", "coach":
		delay := viper.GetDuration("coach-delay")
		if delay == 0 {
			delay = generation.DefaultCoachDelay
		}
		return generation.NewCoachGenerator(delay), nil

	case "openai":
		apiKey := viper.GetString("openai-api-key")
		if apiKey == "" {
			return nil, errors.New("openai generator requires an API key (--openai-api-key or PARLEY_OPENAI_API_KEY)")
		}
		options := []generation.OpenAIOption{}
		if model := viper.GetString("openai-model"); model != "" {
			options = append(options, generation.WithModel(model))
		}
		return generation.NewOpenAIGenerator(apiKey, options...), nil

	default:
		return nil, errors.Errorf("unknown generator %q (want coach or openai)", viper.GetString("generator"))
	}
}

func buildManager(generator generation.Generator) *manager.Manager {
	registryOptions := []registry.Option{
		registry.WithFirstDialogueName("Nutrition Chat"),
	}
	if greeting := viper.GetString("greeting"); greeting != "" {
		registryOptions = append(registryOptions, registry.WithGreeting(greeting))
	}
	return manager.NewManager(generator, manager.WithRegistry(registry.New(registryOptions...)))
}

func runChat(ctx context.Context) error {
	generator, err := buildGenerator()
	if err != nil {
		return err
	}
	m := buildManager(generator)

	router, err := events.NewEventRouter()
	if err != nil {
		return err
	}
	defer func() {
		if err := router.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event router")
		}
	}()

	router.AddHandler("chat-printer", events.TopicGeneration, printGenerationEvent)
	m.PublisherManager().SubscribePublisher(events.TopicGeneration, router.Publisher)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		return repl(ctx, m)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printGenerationEvent(msg *message.Message) error {
	e, err := events.NewEventFromJSON(msg.Payload)
	if err != nil {
		return err
	}

	switch ev := e.(type) {
	case *events.EventStarted:
		fmt.Println("coach is typing...")
	case *events.EventFinal:
		fmt.Printf("\ncoach> %s\n", ev.Text)
	case *events.EventError:
		fmt.Printf("\ncoach failed to answer: %s\n", ev.ErrorString)
	case *events.EventSuperseded:
		log.Debug().Object("meta", ev.Metadata()).Msg("reply superseded")
	}
	return nil
}

func repl(ctx context.Context, m *manager.Manager) error {
	fmt.Println("parley - type /help for commands")
	printTranscript(m.ActiveDialogue())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		active := m.ActiveDialogue()
		fmt.Printf("[%s]> ", active.Name)
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := dispatchCommand(ctx, m, line)
			if err != nil {
				fmt.Printf("error: %s\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if _, err := m.SendMessage(ctx, m.ActiveID(), line); err != nil {
			fmt.Printf("error: %s\n", err)
		}
	}
}

func dispatchCommand(ctx context.Context, m *manager.Manager, line string) (bool, error) {
	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	switch command {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		printHelp()
		return false, nil

	case "/new":
		id := m.CreateDialogue()
		d, _ := m.Dialogue(id)
		fmt.Printf("created and switched to %q\n", d.Name)
		return false, nil

	case "/list":
		printDialogueList(m.Snapshot())
		return false, nil

	case "/switch":
		id, err := resolveDialogue(m, args)
		if err != nil {
			return false, err
		}
		if err := m.SetActive(id); err != nil {
			return false, err
		}
		printTranscript(m.ActiveDialogue())
		return false, nil

	case "/rename":
		if len(args) == 0 {
			return false, errors.New("usage: /rename <new name>")
		}
		return false, m.RenameDialogue(m.ActiveID(), strings.Join(args, " "))

	case "/pin":
		id, err := resolveDialogue(m, args)
		if err != nil {
			return false, err
		}
		return false, m.TogglePin(id)

	case "/delete":
		id, err := resolveDialogue(m, args)
		if err != nil {
			return false, err
		}
		return false, m.DeleteDialogue(id)

	case "/edit":
		if len(args) < 2 {
			return false, errors.New("usage: /edit <message number> <new text>")
		}
		return false, editMessage(ctx, m, args[0], strings.Join(args[1:], " "))

	case "/quick":
		return false, sendQuickAction(ctx, m, args)

	case "/save":
		if len(args) != 1 {
			return false, errors.New("usage: /save <file.yaml>")
		}
		return false, saveTranscript(m, args[0])

	default:
		return false, errors.Errorf("unknown command %s (try /help)", command)
	}
}

// resolveDialogue maps an optional 1-based index from the /list output to a
// dialogue id; no argument means the active dialogue.
func resolveDialogue(m *manager.Manager, args []string) (registry.DialogueID, error) {
	if len(args) == 0 {
		return m.ActiveID(), nil
	}

	snap := m.Snapshot()
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(snap.Dialogues) {
		return registry.NilDialogueID, errors.Errorf("no dialogue %q (see /list)", args[0])
	}

	return parseDialogueID(snap.Dialogues[n-1].ID)
}

func parseDialogueID(s string) (registry.DialogueID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return registry.NilDialogueID, errors.Wrap(err, "invalid dialogue id")
	}
	return registry.DialogueID(u), nil
}

func editMessage(ctx context.Context, m *manager.Manager, indexArg string, content string) error {
	active := m.ActiveDialogue()
	n, err := strconv.Atoi(indexArg)
	if err != nil || n < 1 || n > len(active.Messages) {
		return errors.Errorf("no message %q in this dialogue", indexArg)
	}

	u, err := uuid.Parse(active.Messages[n-1].ID)
	if err != nil {
		return errors.Wrap(err, "invalid message id")
	}

	id, err := parseDialogueID(active.ID)
	if err != nil {
		return err
	}
	_, err = m.EditMessage(ctx, id, conversation.MessageID(u), content)
	return err
}

func sendQuickAction(ctx context.Context, m *manager.Manager, args []string) error {
	if len(args) == 0 {
		for i, action := range quickActions {
			fmt.Printf("  %d. %s\n", i+1, action)
		}
		return nil
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(quickActions) {
		return errors.Errorf("no quick action %q", args[0])
	}
	_, err = m.SendMessage(ctx, m.ActiveID(), quickActions[n-1])
	return err
}

func saveTranscript(m *manager.Manager, path string) error {
	b, err := yaml.Marshal(m.Snapshot())
	if err != nil {
		return errors.Wrap(err, "could not serialize session")
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return errors.Wrap(err, "could not write session file")
	}
	fmt.Printf("saved session to %s\n", path)
	return nil
}

func printDialogueList(snap manager.Snapshot) {
	for i, d := range snap.Dialogues {
		marker := "  "
		if d.ID == snap.ActiveID {
			marker = "* "
		}
		pin := ""
		if d.Pinned {
			pin = " 📌"
		}
		status := ""
		if d.Phase == generation.PhasePending {
			status = " (typing...)"
		}
		fmt.Printf("%s%d. %s%s — %d messages, last active %s%s\n",
			marker, i+1, d.Name, pin, len(d.Messages),
			d.LastActivity.Format(time.Kitchen), status)
	}
}

func printTranscript(d manager.DialogueView) {
	fmt.Printf("--- %s ---\n", d.Name)
	for i, msg := range d.Messages {
		who := "coach"
		if msg.Author == string(conversation.AuthorUser) {
			who = "you"
		}
		fmt.Printf("%d. %s> %s\n", i+1, who, msg.Content)
	}
}

func printHelp() {
	fmt.Print(`commands:
  /new                      create a new dialogue and switch to it
  /list                     list dialogues (pinned first, then most recent)
  /switch <n>               switch to dialogue n from /list
  /rename <name>            rename the active dialogue
  /pin [n]                  toggle pin on a dialogue (default: active)
  /delete [n]               delete a dialogue (default: active)
  /edit <n> <text>          edit message n of the active dialogue and regenerate
  /quick [n]                list quick-start questions, or send one
  /save <file.yaml>         save the whole session to a YAML file
  /quit                     exit

anything else is sent to the coach as a message.
`)
}
