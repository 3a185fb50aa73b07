package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hrygo/chatturn/internal/settings"
	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/plugin/ai/provider"
	"github.com/hrygo/chatturn/plugin/ai/safety"
	"github.com/hrygo/chatturn/plugin/ai/search"
	"github.com/hrygo/chatturn/plugin/ai/timeout"
	chaterrors "github.com/hrygo/chatturn/server/internal/errors"
	"github.com/hrygo/chatturn/server/internal/observability"
	"github.com/hrygo/chatturn/store"
)

const imageLoadingReply = "Image loading..."

// Store is the persistence a turn needs. *store.Store satisfies it.
type Store interface {
	MessageLister
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	UpsertConversation(ctx context.Context, upsert *store.Conversation) (*store.Conversation, error)
	CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error)
	CreateSafetyLog(ctx context.Context, create *store.SafetyLog) (*store.SafetyLog, error)
	ListFacts(ctx context.Context, find *store.FindFact) ([]*store.Fact, error)
	GetUserSettings(ctx context.Context, userID string) (*store.UserSettings, error)
}

// SettingsProvider returns the settings snapshot a turn runs with.
// *settings.Handle satisfies it.
type SettingsProvider interface {
	Get() *settings.Snapshot
}

// Config wires a Service. Store, Settings and Registry are required.
type Config struct {
	Store    Store
	Settings SettingsProvider
	Registry *provider.Registry
	// Deps are handed to every provider factory. Deps.Completion also summarizes.
	Deps provider.Deps
	// AgentServiceEnv locates the agent service when settings defer to the environment.
	AgentServiceEnv provider.Spec

	Images ai.ImageGenerator
	Hybrid search.HybridSearch
	Web    search.WebSearch
	Safety safety.Checker
	Names  NameResolver

	Metrics *observability.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service runs chat turns.
type Service struct {
	store      Store
	settings   SettingsProvider
	chain      *ChainBuilder
	completion ai.CompletionClient
	images     ai.ImageGenerator
	hybrid     search.HybridSearch
	web        search.WebSearch
	guard      *Guard
	collector  *MetadataCollector
	executor   *Executor
	metrics    *observability.Metrics
	logger     *slog.Logger
	clock      *clock
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("chat service requires a store")
	}
	if cfg.Settings == nil {
		return nil, errors.New("chat service requires settings")
	}
	if cfg.Registry == nil {
		return nil, errors.New("chat service requires a provider registry")
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      cfg.Store,
		settings:   cfg.Settings,
		chain:      NewChainBuilder(cfg.Registry, cfg.Deps, cfg.AgentServiceEnv),
		completion: cfg.Deps.Completion,
		images:     cfg.Images,
		hybrid:     cfg.Hybrid,
		web:        cfg.Web,
		guard:      NewGuard(cfg.Safety),
		collector:  NewMetadataCollector(cfg.Names),
		executor:   NewExecutor(metrics),
		metrics:    metrics,
		logger:     logger,
		clock:      newClock(cfg.Now),
	}, nil
}

// SubmitTurn handles one user message end to end. Blocked, image and
// fallback-exhausted turns are results; configuration, embedding and
// persistence failures are returned as *chaterrors.ChatError.
func (s *Service) SubmitTurn(ctx context.Context, req *TurnRequest) (result *TurnResult, err error) {
	if req == nil || req.UserID == "" {
		return nil, chaterrors.InvalidArgument("user id is required")
	}
	snapshot := s.settings.Get()
	if snapshot == nil {
		return nil, chaterrors.ServiceUnavailable("settings are not loaded")
	}
	cfg := &snapshot.Settings

	logger := observability.NewRequestContext(s.logger, req.UserID)
	ctx = observability.WithRequestContext(ctx, logger)
	ctx, span := observability.StartSpan(ctx, "chat.turn",
		attribute.String(observability.LogFieldUserID, req.UserID),
		attribute.Int64("settings_version", snapshot.Version))

	outcome := observability.OutcomeError
	defer func() {
		observability.EndSpan(span, err)
		s.metrics.RecordTurn(outcome, logger.Duration())
		if err != nil {
			logger.Error("chat turn failed", err,
				slog.String(observability.LogFieldErrorCode, string(chaterrors.GetCodeFromError(err, "INTERNAL"))))
			return
		}
		logger.Info("chat turn completed",
			slog.String("outcome", outcome),
			slog.Int64(observability.LogFieldDuration, logger.DurationMs()))
	}()

	model, err := SelectModel(cfg, req.Options.ModelDeployment)
	if err != nil {
		return nil, err
	}

	conv, err := s.loadConversation(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.SetConversation(conv.ID)
	span.SetAttributes(attribute.String(observability.LogFieldConversationID, conv.ID))
	logger.Info("chat turn started",
		slog.Int(observability.LogFieldMessageLen, len(req.Message)),
		slog.String("model", model))

	if err := s.persistUserMessage(ctx, conv, req); err != nil {
		return nil, err
	}

	if cfg.EnableContentSafety && s.guard.Enabled() {
		verdict, err := s.guard.Check(ctx, req.Message)
		if err != nil {
			s.metrics.RecordSafetyError()
			logger.Warn("content safety check failed, letting the message through",
				slog.String("error", err.Error()))
		} else if verdict.Blocked {
			outcome = observability.OutcomeBlocked
			return s.block(ctx, conv, req, verdict)
		}
	}

	if req.Options.ImageGeneration {
		result, err = s.generateImage(ctx, cfg, conv, req)
		if err == nil {
			outcome = observability.OutcomeImage
		}
		return result, err
	}

	summarizer := s.summarizer(model)

	aug, err := NewAugmenter(s.hybrid, s.web, s.store, summarizer, s.metrics).Augment(ctx, augmentRequest{
		UserID:             req.UserID,
		ConversationID:     conv.ID,
		Message:            req.Message,
		Options:            req.Options,
		HistoryLimit:       cfg.HistoryLimit(),
		SummarizeForSearch: cfg.EnableSummarizeHistoryForSearch,
		SummarizeCount:     cfg.NumberOfHistoricalMessagesToSummarize,
	})
	if err != nil {
		return nil, err
	}

	history, err := NewHistoryAssembler(s.store, summarizer).Assemble(ctx, conv.ID, req.Message,
		cfg.HistoryLimit(), cfg.EnableSummarizeHistoryBeyondLimit)
	if err != nil {
		return nil, chaterrors.Wrap(err, chaterrors.ErrCodeHistoryPreparationFailed, "Error preparing conversation history")
	}
	if err := s.persistAugmentations(ctx, conv, req, aug); err != nil {
		return nil, err
	}

	userSettings := s.userSettings(ctx, req.UserID)
	plan := s.chain.Plan(ctx, cfg, userSettings, model)

	parts := promptParts{
		Summary:             history.Summary,
		DefaultSystemPrompt: cfg.DefaultSystemPrompt,
		Augmentations:       aug.SystemMessages,
		Recent:              history.Recent,
	}
	if plan.Enabled {
		parts.Facts, parts.Metadata = s.agentContext(ctx, cfg, conv, req, plan.SelectedID())
	}

	generated := s.executor.Run(ctx, plan.Steps(parts.Messages()), model)
	if generated.Exhausted {
		outcome = observability.OutcomeFallback
	} else {
		outcome = observability.OutcomeReply
	}

	return s.finish(ctx, conv, req, aug, plan, generated)
}

// loadConversation returns the requested conversation, or a new one. A missing
// conversation is recreated under the requested id.
func (s *Service) loadConversation(ctx context.Context, req *TurnRequest) (*store.Conversation, error) {
	logger := observability.LoggerFrom(ctx, req.UserID)
	chatType := normalizeChatType(req.Options.ChatType)
	fresh := func(id string) *store.Conversation {
		conv := &store.Conversation{
			ID:       id,
			UserID:   req.UserID,
			ChatType: chatType,
			Title:    DefaultTitle,
		}
		if chatType == store.ChatTypeGroup {
			conv.GroupID = req.Options.ActiveGroupID
		}
		return conv
	}

	if req.ConversationID == "" {
		return fresh(uuid.New().String()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.StoreTimeout)
	defer cancel()
	conv, err := s.store.GetConversation(ctx, req.ConversationID)
	switch {
	case err == nil:
		return conv, nil
	case errors.Is(err, store.ErrNotFound):
		logger.Warn("conversation not found, creating it under the requested id")
		return fresh(req.ConversationID), nil
	default:
		return nil, chaterrors.Wrap(err, chaterrors.ErrCodeConversationLoadFailed, "Failed to load conversation")
	}
}

func (s *Service) persistUserMessage(ctx context.Context, conv *store.Conversation, req *TurnRequest) error {
	ts := s.clock.Next(conv.LastUpdatedTs)
	msg := &store.Message{
		ID:             newMessageID(conv.ID, string(store.RoleUser), s.clock.Time()),
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        req.Message,
		CreatedTs:      ts,
		Metadata: map[string]any{
			"hybrid_search":        req.Options.HybridSearch,
			"selected_document_id": req.Options.SelectedDocumentID,
			"web_search":           req.Options.WebSearch,
			"image_generation":     req.Options.ImageGeneration,
			"doc_scope":            string(req.Options.DocScope),
			"active_group_id":      req.Options.ActiveGroupID,
		},
	}
	if err := s.createMessage(ctx, msg); err != nil {
		return err
	}

	if conv.Title == DefaultTitle {
		conv.Title = titleFrom(req.Message)
	}
	conv.LastUpdatedTs = ts
	return s.upsertConversation(ctx, conv)
}

// block persists the safety outcome and returns the blocked result.
func (s *Service) block(ctx context.Context, conv *store.Conversation, req *TurnRequest, verdict *Verdict) (*TurnResult, error) {
	logger := observability.LoggerFrom(ctx, req.UserID)
	s.metrics.RecordSafetyBlock()
	logger.Warn("message blocked by content safety",
		slog.Int("max_severity", verdict.MaxSeverity),
		slog.String("reason", verdict.LogReason()))

	ts := s.clock.Next(conv.LastUpdatedTs)
	storeCtx, cancel := context.WithTimeout(ctx, timeout.StoreTimeout)
	_, err := s.store.CreateSafetyLog(storeCtx, &store.SafetyLog{
		ID:                  shortuuid.New(),
		UserID:              req.UserID,
		ConversationID:      conv.ID,
		Message:             req.Message,
		TriggeredCategories: verdict.Categories,
		BlocklistMatches:    verdict.BlocklistMatches,
		Reason:              verdict.LogReason(),
		CreatedTs:           ts,
	})
	cancel()
	if err != nil {
		return nil, chaterrors.Wrap(err, chaterrors.ErrCodeSafetyLogFailed, "Failed to record safety log")
	}

	msg := &store.Message{
		ID:             newMessageID(conv.ID, string(store.RoleSafety), s.clock.Time()),
		ConversationID: conv.ID,
		Role:           store.RoleSafety,
		Content:        verdict.Message(),
		CreatedTs:      ts,
		Extra: store.MessageExtra{
			TriggeredCategories: verdict.Categories,
			BlocklistMatches:    verdict.BlocklistMatches,
		},
	}
	if err := s.createMessage(ctx, msg); err != nil {
		return nil, err
	}
	conv.LastUpdatedTs = ts
	if err := s.upsertConversation(ctx, conv); err != nil {
		return nil, err
	}

	result := newTurnResult(conv)
	result.Reply = msg.Content
	result.MessageID = msg.ID
	result.Blocked = true
	result.TriggeredCategories = verdict.Categories
	result.BlocklistMatches = verdict.BlocklistMatches
	return result, nil
}

func (s *Service) generateImage(ctx context.Context, cfg *settings.Settings, conv *store.Conversation, req *TurnRequest) (*TurnResult, error) {
	model := SelectImageModel(cfg)
	if s.images == nil || model == "" {
		return nil, chaterrors.Configuration("Image generation model is not configured")
	}

	genCtx, cancel := context.WithTimeout(ctx, timeout.ImageGenerationTimeout)
	url, err := s.images.Generate(genCtx, model, req.Message)
	cancel()
	if err != nil {
		return nil, chaterrors.Wrap(err, chaterrors.ErrCodeImageGenerationFailed, "Image generation failed")
	}

	ts := s.clock.Next(conv.LastUpdatedTs)
	msg := &store.Message{
		ID:                  newMessageID(conv.ID, string(store.RoleImage), s.clock.Time()),
		ConversationID:      conv.ID,
		Role:                store.RoleImage,
		Content:             url,
		CreatedTs:           ts,
		ModelDeploymentName: model,
		Extra:               store.MessageExtra{Prompt: req.Message},
	}
	if err := s.createMessage(ctx, msg); err != nil {
		return nil, err
	}
	conv.LastUpdatedTs = ts
	if err := s.upsertConversation(ctx, conv); err != nil {
		return nil, err
	}

	result := newTurnResult(conv)
	result.Reply = imageLoadingReply
	result.ImageURL = url
	result.MessageID = msg.ID
	result.ModelDeploymentName = model
	return result, nil
}

// persistAugmentations stores each augmentation prompt as its own system message.
func (s *Service) persistAugmentations(ctx context.Context, conv *store.Conversation, req *TurnRequest, aug *Augmentation) error {
	for _, m := range aug.SystemMessages {
		err := s.createMessage(ctx, &store.Message{
			ID:             newMessageID(conv.ID, roleSystemAugmentation, s.clock.Time()),
			ConversationID: conv.ID,
			Role:           store.RoleSystem,
			Content:        m.Content,
			CreatedTs:      s.clock.Next(conv.LastUpdatedTs),
			Extra: store.MessageExtra{
				SearchQuery: aug.SearchQuery,
				UserMessage: req.Message,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) userSettings(ctx context.Context, userID string) *store.UserSettings {
	ctx, cancel := context.WithTimeout(ctx, timeout.StoreTimeout)
	defer cancel()
	us, err := s.store.GetUserSettings(ctx, userID)
	if err != nil {
		observability.LoggerFrom(ctx, userID).Warn("failed to load user settings, using defaults",
			slog.String("error", err.Error()))
		return nil
	}
	return us
}

// agentContext renders the fact memory and conversation metadata blocks. Facts
// belong to the default configured agent and the group or user scope of the turn;
// the metadata block names the agent the plan selected.
func (s *Service) agentContext(ctx context.Context, cfg *settings.Settings, conv *store.Conversation, req *TurnRequest, selectedAgentID string) (facts, metadata string) {
	agentID := ""
	if a, ok := SelectAgent(cfg.Agents, ""); ok {
		agentID = a.ID
	}
	scopeType, scopeID := scopeTypeUser, req.UserID
	if normalizeChatType(req.Options.ChatType) == store.ChatTypeGroup && req.Options.ActiveGroupID != "" {
		scopeType, scopeID = scopeTypeGroup, req.Options.ActiveGroupID
	}

	storeCtx, cancel := context.WithTimeout(ctx, timeout.StoreTimeout)
	list, err := s.store.ListFacts(storeCtx, &store.FindFact{
		AgentID:   &agentID,
		ScopeType: &scopeType,
		ScopeID:   &scopeID,
	})
	cancel()
	if err != nil {
		observability.LoggerFrom(ctx, req.UserID).Warn("failed to load facts",
			slog.String("error", err.Error()))
	}
	return factsBlock(list, agentID, scopeType, scopeID, conv.ID), metadataBlock(scopeID, scopeType, conv.ID, selectedAgentID)
}

// finish persists the reply and the updated conversation metadata.
func (s *Service) finish(ctx context.Context, conv *store.Conversation, req *TurnRequest, aug *Augmentation, plan *AgentPlan, generated Outcome) (*TurnResult, error) {
	msg := &store.Message{
		ID:                  newMessageID(conv.ID, string(store.RoleAssistant), s.clock.Time()),
		ConversationID:      conv.ID,
		Role:                store.RoleAssistant,
		Content:             generated.Text,
		CreatedTs:           s.clock.Next(conv.LastUpdatedTs),
		ModelDeploymentName: generated.Model,
		Extra: store.MessageExtra{
			Augmented:          aug.Augmented(),
			HybridCitations:    aug.HybridCitations,
			HybridSearchQuery:  aug.HybridQuery(),
			WebSearchCitations: aug.WebCitations,
			UserMessage:        req.Message,
		},
	}
	if generated.Mode != "" {
		msg.Metadata = map[string]any{"chat_mode": generated.Mode}
	}
	if err := s.createMessage(ctx, msg); err != nil {
		return nil, err
	}

	agentName := ""
	if plan.Enabled {
		agentName = plan.SelectedName()
	}
	conv.Classification = mergeClassifications(conv.Classification, aug.Classifications)
	conv.LastUpdatedTs = msg.CreatedTs
	updated := s.collector.Update(ctx, conv, TurnContext{
		UserID:        req.UserID,
		ActiveGroupID: req.Options.ActiveGroupID,
		Message:       req.Message,
		Model:         generated.Model,
		Agent:         agentName,
		Chunks:        aug.Chunks,
		WebResults:    aug.WebResults,
	})
	if err := s.upsertConversation(ctx, updated); err != nil {
		return nil, err
	}

	result := newTurnResult(updated)
	result.Reply = generated.Text
	result.MessageID = msg.ID
	result.ModelDeploymentName = generated.Model
	result.Augmented = aug.Augmented()
	if len(aug.HybridCitations) > 0 {
		result.HybridCitations = aug.HybridCitations
	}
	if len(aug.WebCitations) > 0 {
		result.WebSearchCitations = aug.WebCitations
	}
	if generated.Notice != "" {
		notice := generated.Notice
		result.KernelFallbackNotice = &notice
	}
	return result, nil
}

func (s *Service) summarizer(model string) Summarizer {
	if s.completion == nil {
		return nil
	}
	return completionSummarizer{client: s.completion, model: model}
}

func (s *Service) createMessage(ctx context.Context, msg *store.Message) error {
	ctx, cancel := context.WithTimeout(ctx, timeout.StoreTimeout)
	defer cancel()
	if _, err := s.store.CreateMessage(ctx, msg); err != nil {
		return chaterrors.Wrap(err, chaterrors.ErrCodePersistenceFailed, "Failed to save "+string(msg.Role)+" message")
	}
	return nil
}

func (s *Service) upsertConversation(ctx context.Context, conv *store.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, timeout.StoreTimeout)
	defer cancel()
	if _, err := s.store.UpsertConversation(ctx, conv); err != nil {
		return chaterrors.Wrap(err, chaterrors.ErrCodePersistenceFailed, "Failed to save conversation")
	}
	return nil
}
