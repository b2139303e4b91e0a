// Command chat is a terminal front end for the study tutor. It streams
// assistant replies as they arrive and keeps conversation history in
// Postgres when DATABASE_URL is set, in memory otherwise.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/studytutor/chat-client/internal/attachment"
	"github.com/studytutor/chat-client/internal/auth"
	"github.com/studytutor/chat-client/internal/chat"
	"github.com/studytutor/chat-client/internal/config"
	"github.com/studytutor/chat-client/internal/gateway"
	"github.com/studytutor/chat-client/internal/model"
	"github.com/studytutor/chat-client/internal/store"
	"github.com/studytutor/chat-client/internal/store/memory"
	"github.com/studytutor/chat-client/internal/store/postgres"
	"github.com/studytutor/chat-client/internal/transcript"
	"github.com/studytutor/chat-client/pkg/logger"
	"github.com/studytutor/chat-client/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chat:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-client", cfg.TracingEndpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		st = postgres.New(pool)
		log.Info("using postgres store")
	} else {
		st = memory.New()
		log.Info("using in-memory store, history will not survive restarts")
	}

	session, err := auth.FromToken(cfg.SessionToken)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	gw := gateway.NewClient(cfg.GatewayURL, cfg.RequestTimeout, log)
	engine := chat.NewEngine(st, chat.WrapGateway(gw), session, cfg.DefaultModel, log)

	if err := engine.LoadConversations(ctx); err != nil {
		log.Warn("could not load conversations", zap.Error(err))
	}

	return repl(ctx, engine, log)
}

func serveMetrics(addr string, log *logger.Logger) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Info("metrics listener started", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Error("metrics listener failed", zap.Error(err))
	}
}

// replState holds the toggles and staged attachments between prompts. The
// WaitGroup tracks sends running off the prompt loop so /quit can drain
// them.
type replState struct {
	thinking    bool
	webSearch   bool
	attachments []model.Attachment
	sends       sync.WaitGroup
}

func repl(ctx context.Context, engine *chat.Engine, log *logger.Logger) error {
	engine.OnStream(func(u chat.StreamUpdate) {
		if u.Done {
			fmt.Println()
			return
		}
		if u.ReasoningDelta != "" {
			fmt.Print(u.ReasoningDelta)
		}
		if u.AnswerDelta != "" {
			fmt.Print(u.AnswerDelta)
		}
	})

	fmt.Println("study tutor chat. /help for commands, /quit to exit.")
	state := &replState{}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		printPrompt(engine, state)
		if !scanner.Scan() {
			engine.Stop()
			state.sends.Wait()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runCommand(ctx, engine, state, line)
			if err != nil {
				fmt.Println("error:", err)
			}
			if quit {
				return nil
			}
			continue
		}

		send(ctx, engine, state, line)
	}
}

func printPrompt(engine *chat.Engine, state *replState) {
	title := "no conversation"
	if conv := engine.Current(); conv != nil {
		title = conv.Title
	}
	var flags []string
	if state.thinking {
		flags = append(flags, "think")
	}
	if state.webSearch {
		flags = append(flags, "web")
	}
	if n := len(state.attachments); n > 0 {
		flags = append(flags, fmt.Sprintf("%d attached", n))
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = " [" + strings.Join(flags, ",") + "]"
	}
	fmt.Printf("\n(%s)%s> ", title, suffix)
}

// send runs off the prompt loop so stdin stays live while the response
// streams; /stop only works because the loop keeps reading.
func send(ctx context.Context, engine *chat.Engine, state *replState, text string) {
	attachments := state.attachments
	state.attachments = nil
	opts := chat.SendOptions{
		ThinkingMode: state.thinking,
		WebSearch:    state.webSearch,
	}

	state.sends.Add(1)
	go func() {
		defer state.sends.Done()

		err := engine.SendMessage(ctx, text, attachments, opts)
		switch {
		case err == nil:
			printCitations(engine)
		case errors.Is(err, chat.ErrSendInFlight):
			fmt.Println("a response is still streaming, /stop it first")
		case errors.Is(err, gateway.ErrRateLimited):
			fmt.Println("rate limited, wait a moment and resend")
		case errors.Is(err, gateway.ErrQuotaExceeded):
			fmt.Println("usage quota exhausted")
		default:
			fmt.Println("send failed:", err)
		}
	}()
}

// printCitations lists the sources block of the latest reply, parsed out of
// the final content.
func printCitations(engine *chat.Engine) {
	conv := engine.Current()
	if conv == nil || len(conv.Messages) == 0 {
		return
	}
	last := conv.Messages[len(conv.Messages)-1]
	if last.Role != model.RoleAssistant {
		return
	}
	_, answer := transcript.SplitThinking(last.Content)
	citations, _ := transcript.ParseSources(answer)
	if len(citations) == 0 {
		return
	}
	fmt.Println("\nsources:")
	for i, c := range citations {
		fmt.Printf("  %d. %s (%s)\n", i+1, c.Title, c.Domain)
	}
}

func runCommand(ctx context.Context, engine *chat.Engine, state *replState, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		engine.Stop()
		state.sends.Wait()
		return true, nil

	case "/help":
		printHelp()

	case "/new":
		_, err = engine.CreateConversation(ctx, "")

	case "/list":
		listConversations(engine)

	case "/open":
		if len(args) != 1 {
			return false, errors.New("usage: /open <number>")
		}
		var conv *model.Conversation
		conv, err = conversationByIndex(engine, args[0])
		if err == nil {
			err = engine.SelectConversation(ctx, conv.ID)
		}
		if err == nil {
			printHistory(engine)
		}

	case "/delete":
		if len(args) != 1 {
			return false, errors.New("usage: /delete <number>")
		}
		var conv *model.Conversation
		conv, err = conversationByIndex(engine, args[0])
		if err == nil {
			err = engine.DeleteConversation(ctx, conv.ID)
		}

	case "/model":
		if len(args) == 0 {
			listModels(engine)
			return false, nil
		}
		err = engine.UpdateModel(ctx, args[0])

	case "/think":
		state.thinking = !state.thinking
		fmt.Println("thinking mode:", onOff(state.thinking))

	case "/web":
		state.webSearch = !state.webSearch
		fmt.Println("web search:", onOff(state.webSearch))

	case "/attach":
		if len(args) != 1 {
			return false, errors.New("usage: /attach <path>")
		}
		err = attachFile(ctx, state, args[0])

	case "/stop":
		engine.Stop()

	default:
		fmt.Println("unknown command, /help lists the commands")
	}
	return false, err
}

func printHelp() {
	fmt.Print(`commands:
  /new             start a new conversation
  /list            list conversations
  /open <n>        open conversation n from the list
  /delete <n>      delete conversation n
  /model [id]      show models, or switch the current conversation's model
  /think           toggle thinking mode
  /web             toggle web search
  /attach <path>   stage a file for the next message
  /stop            abort the streaming response
  /quit            exit
`)
}

func listConversations(engine *chat.Engine) {
	convs := engine.Conversations()
	if len(convs) == 0 {
		fmt.Println("no conversations yet")
		return
	}
	current := engine.Current()
	for i, conv := range convs {
		marker := " "
		if current != nil && conv.ID == current.ID {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s  (%s, %s)\n", marker, i+1, conv.Title, conv.Model,
			conv.UpdatedAt.Local().Format("Jan 2 15:04"))
	}
}

func listModels(engine *chat.Engine) {
	currentModel := ""
	if conv := engine.Current(); conv != nil {
		currentModel = conv.Model
	}
	for _, m := range model.AvailableModels {
		marker := " "
		if m.ID == currentModel {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, m.ID, m.Name)
	}
}

func conversationByIndex(engine *chat.Engine, arg string) (*model.Conversation, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", arg)
	}
	convs := engine.Conversations()
	if n < 1 || n > len(convs) {
		return nil, fmt.Errorf("no conversation %d, /list shows %d", n, len(convs))
	}
	return convs[n-1], nil
}

func printHistory(engine *chat.Engine) {
	conv := engine.Current()
	if conv == nil {
		return
	}
	for _, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleUser:
			fmt.Printf("\nyou: %s\n", msg.Content)
		case model.RoleAssistant:
			_, answer := transcript.SplitThinking(msg.Content)
			fmt.Printf("\ntutor: %s\n", answer)
		}
		for _, att := range msg.Attachments {
			fmt.Printf("  [attachment: %s]\n", att.Name)
		}
	}
}

func attachFile(ctx context.Context, state *replState, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	att, err := attachment.Encode(ctx, attachment.Input{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Size:     info.Size(),
		Reader:   f,
	})
	if err != nil {
		return err
	}
	state.attachments = append(state.attachments, att)
	fmt.Printf("staged %s (%s)\n", att.Name, att.MIMEType)
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
