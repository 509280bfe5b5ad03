package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	"ballotbox/contexts/governance/voting-ledger/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/moznion/go-optional"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AutoMigrate creates or updates every voting-ledger table.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&ledgerModel{},
		&scheduleEntryModel{},
		&randomnessRequestModel{},
		&rightHoldingModel{},
		&outboxModel{},
		&eventDedupModel{},
	); err != nil {
		return r.logError("ledger_repo_automigrate_failed", err)
	}
	return nil
}

func (r *Repository) CreateLedger(ctx context.Context, ledger entities.Ledger) error {
	row, err := ledgerModelFromEntity(ledger)
	if err != nil {
		return err
	}
	row.Version = 1
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("ledger_repo_create_ledger_failed", err, "ledger_id", row.ID)
	}
	return nil
}

// SaveLedger writes the ledger only when the stored version still equals
// ledger.Version.
func (r *Repository) SaveLedger(ctx context.Context, ledger entities.Ledger) (entities.Ledger, error) {
	row, err := ledgerModelFromEntity(ledger)
	if err != nil {
		return entities.Ledger{}, err
	}
	result := r.db.WithContext(ctx).
		Model(&ledgerModel{}).
		Where("id = ? AND version = ?", row.ID, ledger.Version).
		Updates(map[string]any{
			"state":                  row.State,
			"tally":                  row.Tally,
			"choices":                row.Choices,
			"pending_random_request": row.PendingRandomRequest,
			"randomness_attempts":    row.RandomnessAttempts,
			"winner":                 row.Winner,
			"random_value":           row.RandomValue,
			"settlement":             row.Settlement,
			"settlement_reason":      row.SettlementReason,
			"version":                ledger.Version + 1,
			"updated_at":             row.UpdatedAt,
			"closed_at":              row.ClosedAt,
			"resolved_at":            row.ResolvedAt,
		})
	if result.Error != nil {
		return entities.Ledger{}, r.logError("ledger_repo_save_ledger_failed", result.Error, "ledger_id", row.ID)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&ledgerModel{}).Where("id = ?", row.ID).Count(&count).Error; err != nil {
			return entities.Ledger{}, r.logError("ledger_repo_save_ledger_lookup_failed", err, "ledger_id", row.ID)
		}
		if count == 0 {
			return entities.Ledger{}, domainerrors.ErrLedgerNotFound
		}
		return entities.Ledger{}, domainerrors.ErrConflict
	}
	saved := ledger.Clone()
	saved.Version = ledger.Version + 1
	return saved, nil
}

func (r *Repository) GetLedger(ctx context.Context, ledgerID string) (entities.Ledger, error) {
	var row ledgerModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(ledgerID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Ledger{}, domainerrors.ErrLedgerNotFound
		}
		return entities.Ledger{}, r.logError("ledger_repo_get_ledger_failed", err, "ledger_id", strings.TrimSpace(ledgerID))
	}
	return row.toEntity()
}

func (r *Repository) ListLedgers(ctx context.Context) ([]entities.Ledger, error) {
	var rows []ledgerModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_ledgers_failed", err)
	}
	return toLedgerEntities(rows)
}

func (r *Repository) ListLedgersBySettlement(ctx context.Context, status entities.SettlementStatus) ([]entities.Ledger, error) {
	var rows []ledgerModel
	if err := r.db.WithContext(ctx).
		Where("settlement = ?", string(status)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_ledgers_by_settlement_failed", err, "settlement", string(status))
	}
	return toLedgerEntities(rows)
}

func (r *Repository) SaveScheduleEntry(ctx context.Context, entry entities.ScheduleEntry) error {
	row := scheduleEntryModel{
		LedgerID:     strings.TrimSpace(entry.LedgerID),
		Deadline:     entry.Deadline.UTC(),
		Sequence:     int64(entry.Sequence),
		Done:         entry.Done,
		RegisteredAt: entry.RegisteredAt.UTC(),
		ExecutedAt:   entry.ExecutedAt,
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ledger_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_save_schedule_entry_failed", create.Error, "ledger_id", row.LedgerID)
	}
	if create.RowsAffected == 0 {
		return domainerrors.ErrAlreadyScheduled
	}
	return nil
}

func (r *Repository) ListScheduleEntries(ctx context.Context) ([]entities.ScheduleEntry, error) {
	var rows []scheduleEntryModel
	if err := r.db.WithContext(ctx).
		Order("sequence ASC, ledger_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_schedule_entries_failed", err)
	}
	items := make([]entities.ScheduleEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// MarkScheduleEntryDone never flips a done entry back.
func (r *Repository) MarkScheduleEntryDone(ctx context.Context, ledgerID string, executedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&scheduleEntryModel{}).
		Where("ledger_id = ? AND done = ?", strings.TrimSpace(ledgerID), false).
		Updates(map[string]any{
			"done":        true,
			"executed_at": executedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("ledger_repo_mark_schedule_entry_done_failed", result.Error, "ledger_id", strings.TrimSpace(ledgerID))
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&scheduleEntryModel{}).
			Where("ledger_id = ?", strings.TrimSpace(ledgerID)).
			Count(&count).Error; err != nil {
			return r.logError("ledger_repo_mark_schedule_entry_lookup_failed", err, "ledger_id", strings.TrimSpace(ledgerID))
		}
		if count == 0 {
			return domainerrors.ErrScheduleEntryNotFound
		}
	}
	return nil
}

func (r *Repository) SaveRandomnessRequest(ctx context.Context, request entities.RandomnessRequest) error {
	row := randomnessRequestModel{
		RequestID:   strings.TrimSpace(request.RequestID),
		LedgerID:    strings.TrimSpace(request.LedgerID),
		Attempt:     request.Attempt,
		Status:      string(request.Status),
		IssuedAt:    request.IssuedAt.UTC(),
		FulfilledAt: request.FulfilledAt,
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "request_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":       row.Status,
			"fulfilled_at": row.FulfilledAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_save_randomness_request_failed", create.Error, "request_id", row.RequestID)
	}
	return nil
}

func (r *Repository) GetRandomnessRequest(ctx context.Context, requestID string) (entities.RandomnessRequest, bool, error) {
	var row randomnessRequestModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", strings.TrimSpace(requestID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.RandomnessRequest{}, false, nil
		}
		return entities.RandomnessRequest{}, false, r.logError("ledger_repo_get_randomness_request_failed", err,
			"request_id", strings.TrimSpace(requestID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListPendingRandomnessRequests(ctx context.Context) ([]entities.RandomnessRequest, error) {
	var rows []randomnessRequestModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.RandomnessRequestPending)).
		Order("issued_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_pending_randomness_requests_failed", err)
	}
	items := make([]entities.RandomnessRequest, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetHoldingByHolder(ctx context.Context, ledgerID string, holder string) (entities.RightHolding, bool, error) {
	var row rightHoldingModel
	err := r.db.WithContext(ctx).
		Where("ledger_id = ? AND holder = ?", strings.TrimSpace(ledgerID), strings.TrimSpace(holder)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.RightHolding{}, false, nil
		}
		return entities.RightHolding{}, false, r.logError("ledger_repo_get_holding_by_holder_failed", err,
			"ledger_id", strings.TrimSpace(ledgerID),
			"holder", strings.TrimSpace(holder),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) GetHolding(ctx context.Context, rightID string) (entities.RightHolding, bool, error) {
	var row rightHoldingModel
	err := r.db.WithContext(ctx).
		Where("right_id = ?", strings.TrimSpace(rightID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.RightHolding{}, false, nil
		}
		return entities.RightHolding{}, false, r.logError("ledger_repo_get_holding_failed", err,
			"right_id", strings.TrimSpace(rightID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) SaveHolding(ctx context.Context, holding entities.RightHolding) error {
	row := rightHoldingModel{
		RightID:       strings.TrimSpace(holding.RightID),
		LedgerID:      strings.TrimSpace(holding.LedgerID),
		Holder:        strings.TrimSpace(holding.Holder),
		GrantedAt:     holding.GrantedAt.UTC(),
		TransferredAt: holding.TransferredAt,
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "right_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"holder":         row.Holder,
			"transferred_at": row.TransferredAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrAlreadyHoldsRight
		}
		return r.logError("ledger_repo_save_holding_failed", create.Error,
			"right_id", row.RightID,
			"ledger_id", row.LedgerID,
		)
	}
	return nil
}

func (r *Repository) ListHoldings(ctx context.Context, ledgerID string) ([]entities.RightHolding, error) {
	var rows []rightHoldingModel
	if err := r.db.WithContext(ctx).
		Where("ledger_id = ?", strings.TrimSpace(ledgerID)).
		Order("granted_at ASC, right_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_holdings_failed", err, "ledger_id", strings.TrimSpace(ledgerID))
	}
	items := make([]entities.RightHolding, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("ledger_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_append_outbox_insert_failed", create.Error, "outbox_id", row.OutboxID)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("ledger_repo_append_outbox_load_existing_failed", err, "outbox_id", row.OutboxID)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC, outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("ledger_repo_mark_outbox_published_failed", result.Error, "outbox_id", strings.TrimSpace(outboxID))
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("ledger_repo_reserve_event_failed", create.Error, "event_id", row.EventID)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("ledger_repo_reserve_event_load_existing_failed", err, "event_id", row.EventID)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/voting-ledger",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("ledger repository operation failed", fields...)
	return err
}

type ledgerModel struct {
	ID                   string     `gorm:"column:id;primaryKey"`
	Name                 string     `gorm:"column:name"`
	Description          string     `gorm:"column:description"`
	TotalOptions         int        `gorm:"column:total_options"`
	State                string     `gorm:"column:state"`
	Mode                 string     `gorm:"column:mode"`
	Deadline             time.Time  `gorm:"column:deadline"`
	Tally                string     `gorm:"column:tally;type:text"`
	Choices              string     `gorm:"column:choices;type:text"`
	PendingRandomRequest *string    `gorm:"column:pending_random_request"`
	RandomnessAttempts   int        `gorm:"column:randomness_attempts"`
	Winner               *int       `gorm:"column:winner"`
	RandomValue          string     `gorm:"column:random_value;type:text"`
	Settlement           string     `gorm:"column:settlement;index"`
	SettlementReason     string     `gorm:"column:settlement_reason"`
	Version              int64      `gorm:"column:version"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
	ClosedAt             *time.Time `gorm:"column:closed_at"`
	ResolvedAt           *time.Time `gorm:"column:resolved_at"`
}

func (ledgerModel) TableName() string { return "ledgers" }

func ledgerModelFromEntity(ledger entities.Ledger) (ledgerModel, error) {
	tally, err := json.Marshal(ledger.Tally)
	if err != nil {
		return ledgerModel{}, err
	}
	choices := ledger.Choices
	if choices == nil {
		choices = map[string]int{}
	}
	choicesJSON, err := json.Marshal(choices)
	if err != nil {
		return ledgerModel{}, err
	}
	row := ledgerModel{
		ID:                 strings.TrimSpace(ledger.LedgerID),
		Name:               ledger.Name,
		Description:        ledger.Description,
		TotalOptions:       ledger.TotalOptions,
		State:              string(ledger.State),
		Mode:               string(ledger.Mode),
		Deadline:           ledger.Deadline.UTC(),
		Tally:              string(tally),
		Choices:            string(choicesJSON),
		RandomnessAttempts: ledger.RandomnessAttempts,
		RandomValue:        ledger.RandomValue,
		Settlement:         string(ledger.Settlement),
		SettlementReason:   ledger.SettlementReason,
		Version:            ledger.Version,
		CreatedAt:          ledger.CreatedAt.UTC(),
		UpdatedAt:          ledger.UpdatedAt.UTC(),
		ClosedAt:           ledger.ClosedAt,
		ResolvedAt:         ledger.ResolvedAt,
	}
	if requestID, err := ledger.PendingRandomRequest.Take(); err == nil {
		row.PendingRandomRequest = &requestID
	}
	if winner, err := ledger.Winner.Take(); err == nil {
		row.Winner = &winner
	}
	return row, nil
}

func (m ledgerModel) toEntity() (entities.Ledger, error) {
	ledger := entities.Ledger{
		LedgerID:           m.ID,
		Name:               m.Name,
		Description:        m.Description,
		TotalOptions:       m.TotalOptions,
		State:              entities.LedgerState(m.State),
		Mode:               entities.SelectionMode(m.Mode),
		Deadline:           m.Deadline.UTC(),
		RandomnessAttempts: m.RandomnessAttempts,
		RandomValue:        m.RandomValue,
		Settlement:         entities.SettlementStatus(m.Settlement),
		SettlementReason:   m.SettlementReason,
		Version:            m.Version,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
		ClosedAt:           utcPtr(m.ClosedAt),
		ResolvedAt:         utcPtr(m.ResolvedAt),
	}
	if err := json.Unmarshal([]byte(m.Tally), &ledger.Tally); err != nil {
		return entities.Ledger{}, err
	}
	ledger.Choices = make(map[string]int)
	if err := json.Unmarshal([]byte(m.Choices), &ledger.Choices); err != nil {
		return entities.Ledger{}, err
	}
	if m.PendingRandomRequest != nil {
		ledger.PendingRandomRequest = optional.Some(*m.PendingRandomRequest)
	}
	if m.Winner != nil {
		ledger.Winner = optional.Some(*m.Winner)
	}
	return ledger, nil
}

func toLedgerEntities(rows []ledgerModel) ([]entities.Ledger, error) {
	items := make([]entities.Ledger, 0, len(rows))
	for _, row := range rows {
		ledger, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		items = append(items, ledger)
	}
	return items, nil
}

type scheduleEntryModel struct {
	LedgerID     string     `gorm:"column:ledger_id;primaryKey"`
	Deadline     time.Time  `gorm:"column:deadline;index"`
	Sequence     int64      `gorm:"column:sequence"`
	Done         bool       `gorm:"column:done"`
	RegisteredAt time.Time  `gorm:"column:registered_at"`
	ExecutedAt   *time.Time `gorm:"column:executed_at"`
}

func (scheduleEntryModel) TableName() string { return "ledger_schedule_entries" }

func (m scheduleEntryModel) toEntity() entities.ScheduleEntry {
	return entities.ScheduleEntry{
		LedgerID:     m.LedgerID,
		Deadline:     m.Deadline.UTC(),
		Sequence:     uint64(m.Sequence),
		Done:         m.Done,
		RegisteredAt: m.RegisteredAt.UTC(),
		ExecutedAt:   utcPtr(m.ExecutedAt),
	}
}

type randomnessRequestModel struct {
	RequestID   string     `gorm:"column:request_id;primaryKey"`
	LedgerID    string     `gorm:"column:ledger_id;index"`
	Attempt     int        `gorm:"column:attempt"`
	Status      string     `gorm:"column:status;index"`
	IssuedAt    time.Time  `gorm:"column:issued_at"`
	FulfilledAt *time.Time `gorm:"column:fulfilled_at"`
}

func (randomnessRequestModel) TableName() string { return "randomness_requests" }

func (m randomnessRequestModel) toEntity() entities.RandomnessRequest {
	return entities.RandomnessRequest{
		RequestID:   m.RequestID,
		LedgerID:    m.LedgerID,
		Attempt:     m.Attempt,
		Status:      entities.RandomnessRequestStatus(m.Status),
		IssuedAt:    m.IssuedAt.UTC(),
		FulfilledAt: utcPtr(m.FulfilledAt),
	}
}

type rightHoldingModel struct {
	RightID       string     `gorm:"column:right_id;primaryKey"`
	LedgerID      string     `gorm:"column:ledger_id;uniqueIndex:idx_right_holdings_ledger_holder"`
	Holder        string     `gorm:"column:holder;uniqueIndex:idx_right_holdings_ledger_holder"`
	GrantedAt     time.Time  `gorm:"column:granted_at"`
	TransferredAt *time.Time `gorm:"column:transferred_at"`
}

func (rightHoldingModel) TableName() string { return "right_holdings" }

func (m rightHoldingModel) toEntity() entities.RightHolding {
	return entities.RightHolding{
		RightID:       m.RightID,
		LedgerID:      m.LedgerID,
		Holder:        m.Holder,
		GrantedAt:     m.GrantedAt.UTC(),
		TransferredAt: utcPtr(m.TransferredAt),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string { return "ledger_outbox" }

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string { return "ledger_event_dedup" }

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	ts := value.UTC()
	return &ts
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var (
	_ ports.LedgerRepository            = (*Repository)(nil)
	_ ports.ScheduleRepository          = (*Repository)(nil)
	_ ports.RandomnessRequestRepository = (*Repository)(nil)
	_ ports.RightsStore                 = (*Repository)(nil)
	_ ports.OutboxWriter                = (*Repository)(nil)
	_ ports.OutboxRepository            = (*Repository)(nil)
	_ ports.EventDedupStore             = (*Repository)(nil)
)
