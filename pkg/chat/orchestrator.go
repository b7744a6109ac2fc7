// Package chat is the per-message entry point: it serializes messages per
// user, drives the LLM adapter, executes the returned tool call and persists
// the conversation history.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/trempist/trempist/pkg/dispatch"
	"github.com/trempist/trempist/pkg/llm"
	"github.com/trempist/trempist/pkg/models"
	"github.com/trempist/trempist/pkg/notify"
	"github.com/trempist/trempist/pkg/store"
)

// LLMClient is the slice of the LLM adapter the orchestrator needs.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt string, history []models.ChatMessage, userText string, tools []llm.ToolDefinition) (*llm.Reply, error)
}

// Orchestrator handles inbound chat messages.
type Orchestrator struct {
	store      store.Store
	llm        LLMClient
	dispatcher *dispatch.Dispatcher
	sink       notify.ChatSink
	admin      *AdminHandler

	contextMessages int
	maxHistory      int

	locks  sync.Map // "prefix|phone" -> *sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNow overrides the orchestrator clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the orchestrator. sink may be nil (sandbox-only
// deployments); admin may be nil to disable chat admin commands.
func NewOrchestrator(s store.Store, client LLMClient, d *dispatch.Dispatcher, sink notify.ChatSink, admin *AdminHandler, contextMessages, maxHistory int, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:           s,
		llm:             client,
		dispatcher:      d,
		sink:            sink,
		admin:           admin,
		contextMessages: contextMessages,
		maxHistory:      maxHistory,
		now:             time.Now,
		logger:          slog.Default().With("component", "chat"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Inbound is one chat message entering the system.
type Inbound struct {
	Phone          string
	Text           string
	ProfileName    string
	Prefix         store.Prefix
	SendExternally bool
}

// Handle processes one inbound message and always returns a reply string —
// silent drops are not acceptable. Messages from the same user are processed
// serially; concurrent ones queue on the per-user lock.
func (o *Orchestrator) Handle(ctx context.Context, in Inbound) string {
	lock := o.userLock(in.Prefix, in.Phone)
	lock.Lock()
	defer lock.Unlock()

	now := o.now()

	// Persist the inbound before any external call: cancellation later must
	// not lose history.
	var prior []models.ChatMessage
	_, err := o.store.Mutate(ctx, in.Prefix, in.Phone, true, func(u *models.User) error {
		if u.DisplayName == "" && in.ProfileName != "" {
			u.DisplayName = in.ProfileName
		}
		prior = append(prior[:0], u.RecentHistory(o.contextMessages)...)
		u.AppendHistory(models.HistoryRoleUser, in.Text, now, o.maxHistory)
		u.LastSeen = now
		return nil
	})
	if err != nil {
		o.logger.Error("failed to record inbound message", "phone", in.Phone, "error", err)
		return dispatchSystemError
	}

	reply := o.reply(ctx, in, prior)

	if _, err := o.store.Mutate(ctx, in.Prefix, in.Phone, true, func(u *models.User) error {
		u.AppendHistory(models.HistoryRoleAssistant, reply, o.now(), o.maxHistory)
		return nil
	}); err != nil {
		o.logger.Error("failed to record reply", "phone", in.Phone, "error", err)
	}

	if in.SendExternally && o.sink != nil {
		if err := o.sink.SendText(ctx, in.Phone, reply); err != nil {
			o.logger.Error("failed to push reply", "phone", in.Phone, "error", err)
		}
	}
	return reply
}

func (o *Orchestrator) reply(ctx context.Context, in Inbound, prior []models.ChatMessage) string {
	if o.admin != nil && strings.HasPrefix(in.Text, AdminCommandPrefix) {
		return o.admin.Handle(ctx, in.Prefix, in.Text)
	}

	llmReply, err := o.llm.Complete(ctx, llm.BuildSystemPrompt(o.now()), prior, in.Text, dispatch.Tools())
	if err != nil {
		o.logger.Warn("llm call failed", "phone", in.Phone, "error", err)
		return llm.BusyReply
	}

	if llmReply.ToolCall == nil {
		if text := strings.TrimSpace(llmReply.Text); text != "" {
			return text
		}
		return llm.BusyReply
	}

	result := o.dispatcher.Execute(ctx, in.Phone, llmReply.ToolCall, in.Prefix, in.SendExternally)
	if result.IsError {
		o.logger.Warn("tool call rejected", "phone", in.Phone,
			"tool", llmReply.ToolCall.Name, "detail", result.ErrorMsg)
	}
	return result.Reply
}

func (o *Orchestrator) userLock(prefix store.Prefix, phone string) *sync.Mutex {
	key := string(prefix) + "|" + phone
	actual, _ := o.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

const dispatchSystemError = "משהו השתבש אצלנו, נסו שוב בעוד רגע 🙏"
