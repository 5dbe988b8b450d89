package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/lk2023060901/copilot-chat/internal/chat/attachment"
	"github.com/lk2023060901/copilot-chat/internal/chat/store"
	"github.com/lk2023060901/copilot-chat/internal/chat/transport"
	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/lk2023060901/copilot-chat/internal/conf"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
	"github.com/lk2023060901/copilot-chat/internal/pkg/workerpool"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
	endpoint   = flag.String("endpoint", "", "chat endpoint, overrides config")
	message    = flag.String("message", "", "message to send")
	attach     = flag.String("attach", "", "file to upload and attach to the message")
	threadID   = flag.String("thread", "", "continue an existing thread")
	list       = flag.Bool("list", false, "list threads and exit")
	timeout    = flag.Duration("timeout", 60*time.Second, "how long to wait for the reply")
)

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	if *endpoint != "" {
		config.Client.Endpoint = *endpoint
	}

	// CLI output goes to stdout; keep the logger quiet on the console.
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "console"})
	if err != nil {
		fatalf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	trCfg := &transport.Config{
		Endpoint:             config.Client.Endpoint,
		CallTimeout:          config.Client.CallTimeout,
		RetryableStatusCodes: config.Client.RetryableStatusCodes,
	}
	tr, err := transport.New(trCfg, log)
	if err != nil {
		fatalf("failed to create transport: %v", err)
	}

	done := make(chan struct{})
	st := store.New(tr, log, store.Callbacks{
		OnThreadCreated: func(thread *types.Thread) {
			fmt.Printf("thread %s created\n", thread.ID)
		},
		OnThreadItemAdded: func(item *types.ThreadItem) {
			printItem(item)
		},
		OnResponseEnd: func(threadID string) {
			close(done)
		},
		OnError: func(info store.ErrorInfo) {
			fmt.Fprintf(os.Stderr, "error [%s]: %s\n", info.Code, info.Message)
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *list {
		if err := st.LoadThreads(ctx, config.Client.ThreadListLimit, config.Client.ThreadListOrder); err != nil {
			fatalf("failed to list threads: %v", err)
		}
		for _, thread := range st.Threads() {
			title := "(untitled)"
			if thread.Title != nil {
				title = *thread.Title
			}
			fmt.Printf("%s  %s  %s\n", thread.ID, thread.CreatedAt.Format(time.RFC3339), title)
		}
		return
	}

	if *message == "" {
		fatalf("nothing to do: pass -message or -list")
	}

	var attachments []types.AttachmentMeta
	if *attach != "" {
		attachments = uploadAttachment(ctx, config, tr, log, *attach)
	}

	if *threadID != "" {
		st.SelectThread(ctx, *threadID)
	}
	st.SendMessage(*message, attachments)

	select {
	case <-done:
	case <-ctx.Done():
		st.CancelStreaming()
		fatalf("timed out waiting for reply")
	}

	// Show the folded output of the turn.
	for _, item := range st.ActiveItems() {
		switch item.Type {
		case types.ItemTypeAssistantMessage:
			fmt.Println()
			fmt.Println(item.Text())
		case types.ItemTypeWidget:
			fmt.Printf("\n[widget] %s\n", string(item.Widget))
		}
	}
}

// uploadAttachment runs the two-phase upload for one local file and blocks
// until it is sendable. Pool size follows the upload worker configuration.
func uploadAttachment(ctx context.Context, config *conf.Config, tr transport.Transport, log *logger.Logger, path string) []types.AttachmentMeta {
	f, err := os.Open(path)
	if err != nil {
		fatalf("failed to open attachment: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fatalf("failed to stat attachment: %v", err)
	}
	if config.Upload.MaxFileSize > 0 && info.Size() > config.Upload.MaxFileSize {
		fatalf("attachment %s exceeds the %d byte limit", path, config.Upload.MaxFileSize)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	pool, err := workerpool.New(&workerpool.Config{Workers: config.Upload.Workers}, log.Logger)
	if err != nil {
		fatalf("failed to create upload pool: %v", err)
	}
	defer pool.Shutdown()

	mgr := attachment.NewManager(attachment.NewClient(tr, log), pool, log, attachment.ManagerCallbacks{})
	file := attachment.File{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MimeType: mimeType,
		Reader:   f,
	}
	if _, err := mgr.Add(file, ""); err != nil {
		fatalf("failed to schedule upload: %v", err)
	}

	for {
		if ready := mgr.Ready(); len(ready) > 0 {
			return ready
		}
		for _, meta := range mgr.List() {
			if meta.UploadStatus == types.UploadStatusError {
				fatalf("failed to upload %s", path)
			}
		}
		select {
		case <-ctx.Done():
			fatalf("timed out uploading attachment")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func printItem(item *types.ThreadItem) {
	if item.Type == types.ItemTypeTask && item.Task != nil && item.Task.Title != nil {
		fmt.Printf("[task] %s\n", *item.Task.Title)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
