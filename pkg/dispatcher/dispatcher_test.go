package dispatcher

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/dispatch-core/pkg/circuitbreaker"
	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/observability"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

// fakeEncryption is a trivial AES-GCM collaborator with one fixed key, used
// so tests can seal and unseal titles without exercising pkg/keystore.
type fakeEncryption struct {
	key []byte
}

func newFakeEncryption() *fakeEncryption {
	return &fakeEncryption{key: []byte("01234567890123456789012345678901")[:32]}
}

func (f *fakeEncryption) GetKey(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	return f.key, nil
}

func (f *fakeEncryption) Decrypt(ciphertext []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (f *fakeEncryption) seal(plaintext string) string {
	block, _ := aes.NewCipher(f.key)
	gcm, _ := cipher.NewGCM(block)
	nonce := make([]byte, gcm.NonceSize())
	_, _ = rand.Read(nonce)
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

type fakeTaskRepository struct {
	tasks   []*models.Task
	updated []*models.Task
}

func (f *fakeTaskRepository) Create(ctx context.Context, task *models.Task) error { return nil }
func (f *fakeTaskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return nil, interfaces.ErrNotFound
}
func (f *fakeTaskRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Task, error) {
	return nil, interfaces.ErrNotFound
}
func (f *fakeTaskRepository) Update(ctx context.Context, task *models.Task) error { return nil }
func (f *fakeTaskRepository) UpdateWithVersion(ctx context.Context, tx *sqlx.Tx, task *models.Task, expectedVersion int) error {
	f.updated = append(f.updated, task)
	return nil
}
func (f *fakeTaskRepository) SoftDelete(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeTaskRepository) ListNext(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Task, error) {
	return f.tasks, nil
}
func (f *fakeTaskRepository) ListBlocked(ctx context.Context, tenantID uuid.UUID) ([]*models.Task, error) {
	return nil, nil
}
func (f *fakeTaskRepository) List(ctx context.Context, filters interfaces.TaskFilters) ([]*models.Task, error) {
	return nil, nil
}
func (f *fakeTaskRepository) Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (*models.TaskStats, error) {
	return nil, nil
}

type fakeQueueRepository struct {
	live    map[uuid.UUID]*models.QueueEntry
	inserts []*models.QueueEntry
}

func newFakeQueueRepository() *fakeQueueRepository {
	return &fakeQueueRepository{live: map[uuid.UUID]*models.QueueEntry{}}
}

func (f *fakeQueueRepository) Insert(ctx context.Context, entry *models.QueueEntry) error {
	entry.ID = uuid.New()
	f.inserts = append(f.inserts, entry)
	return nil
}
func (f *fakeQueueRepository) Get(ctx context.Context, id uuid.UUID) (*models.QueueEntry, error) {
	return nil, interfaces.ErrNotFound
}
func (f *fakeQueueRepository) GetLiveByTask(ctx context.Context, taskID uuid.UUID) (*models.QueueEntry, error) {
	if e, ok := f.live[taskID]; ok {
		return e, nil
	}
	return nil, interfaces.ErrNotFound
}
func (f *fakeQueueRepository) ClaimNext(ctx context.Context, executorType models.ExecutorType, claimToken string) (*models.QueueEntry, error) {
	return nil, interfaces.ErrNotFound
}
func (f *fakeQueueRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.QueueEntryStatus) error {
	return nil
}
func (f *fakeQueueRepository) RecordDispatch(ctx context.Context, id uuid.UUID, workflowInstanceID string) error {
	return nil
}
func (f *fakeQueueRepository) RecordResult(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status models.QueueEntryStatus, result, errText string) error {
	return nil
}
func (f *fakeQueueRepository) RevertExpiredClaims(ctx context.Context, cutoff time.Time) ([]*models.QueueEntry, error) {
	return nil, nil
}
func (f *fakeQueueRepository) ListTerminal(ctx context.Context, cutoff time.Time, limit int) ([]*models.QueueEntry, error) {
	return nil, nil
}
func (f *fakeQueueRepository) ArchiveAndDelete(ctx context.Context, tx *sqlx.Tx, entries []*models.QueueEntry) (int64, error) {
	return 0, nil
}

type fakeDispatchLogRepository struct {
	appended []*models.DispatchLog
	counts   map[models.DispatchAction]int
}

func newFakeDispatchLogRepository() *fakeDispatchLogRepository {
	return &fakeDispatchLogRepository{counts: map[models.DispatchAction]int{}}
}

func (f *fakeDispatchLogRepository) Append(ctx context.Context, tx *sqlx.Tx, entry *models.DispatchLog) error {
	f.appended = append(f.appended, entry)
	return nil
}
func (f *fakeDispatchLogRepository) CountByAction(ctx context.Context, taskID uuid.UUID, action models.DispatchAction) (int, error) {
	return f.counts[action], nil
}
func (f *fakeDispatchLogRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.DispatchLog, error) {
	return f.appended, nil
}

func newDispatcher(tasks *fakeTaskRepository, queue *fakeQueueRepository, logs *fakeDispatchLogRepository, enc *fakeEncryption) *Dispatcher {
	breaker := circuitbreaker.New(logs, 0)
	return New(tasks, queue, logs, breaker, enc, observability.NewNoopLogger(), 10)
}

func TestDispatcher_QueuesClassifiedTask(t *testing.T) {
	enc := newFakeEncryption()
	task := &models.Task{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		UserID:    uuid.New(),
		Title:     enc.seal("[ai] refactor the parser"),
		Status:    models.TaskStatusNext,
		Urgency:   3,
		Importance: 4,
		Version:   1,
	}
	tasks := &fakeTaskRepository{tasks: []*models.Task{task}}
	queue := newFakeQueueRepository()
	logs := newFakeDispatchLogRepository()

	d := newDispatcher(tasks, queue, logs, enc)
	result, err := d.Run(context.Background(), task.TenantID, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Queued)
	require.Len(t, queue.inserts, 1)
	assert.Equal(t, models.ExecutorTypeAI, queue.inserts[0].ExecutorType)
	assert.Equal(t, 12, queue.inserts[0].Priority)
	require.Len(t, logs.appended, 1)
	assert.Equal(t, models.DispatchActionQueued, logs.appended[0].Action)
}

func TestDispatcher_SkipsWhenLiveEntryExists(t *testing.T) {
	enc := newFakeEncryption()
	task := &models.Task{ID: uuid.New(), TenantID: uuid.New(), Title: enc.seal("[ai] x"), Status: models.TaskStatusNext, Version: 1}
	tasks := &fakeTaskRepository{tasks: []*models.Task{task}}
	queue := newFakeQueueRepository()
	queue.live[task.ID] = &models.QueueEntry{ID: uuid.New(), TaskID: task.ID, Status: models.QueueEntryStatusQueued}
	logs := newFakeDispatchLogRepository()

	d := newDispatcher(tasks, queue, logs, enc)
	result, err := d.Run(context.Background(), task.TenantID, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, queue.inserts)
}

func TestDispatcher_CancelsWhenCircuitTripped(t *testing.T) {
	enc := newFakeEncryption()
	task := &models.Task{ID: uuid.New(), TenantID: uuid.New(), Title: enc.seal("[ai] x"), Status: models.TaskStatusNext, Version: 1}
	tasks := &fakeTaskRepository{tasks: []*models.Task{task}}
	queue := newFakeQueueRepository()
	logs := newFakeDispatchLogRepository()
	logs.counts[models.DispatchActionQuarantined] = 3

	d := newDispatcher(tasks, queue, logs, enc)
	result, err := d.Run(context.Background(), task.TenantID, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Cancelled)
	require.Len(t, tasks.updated, 1)
	assert.Equal(t, models.TaskStatusCancelled, tasks.updated[0].Status)
	assert.Equal(t, "Quarantined 3 times", tasks.updated[0].CompletionNotes)
	require.Len(t, logs.appended, 1)
	assert.Equal(t, models.DispatchActionCircuitBreakerTripped, logs.appended[0].Action)
}

func TestDispatcher_SkipsOnExecutorFilterMismatch(t *testing.T) {
	enc := newFakeEncryption()
	task := &models.Task{ID: uuid.New(), TenantID: uuid.New(), Title: enc.seal("[human] review"), Status: models.TaskStatusNext, Version: 1}
	tasks := &fakeTaskRepository{tasks: []*models.Task{task}}
	queue := newFakeQueueRepository()
	logs := newFakeDispatchLogRepository()

	filter := models.ExecutorTypeAI
	d := newDispatcher(tasks, queue, logs, enc)
	result, err := d.Run(context.Background(), task.TenantID, &filter)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, queue.inserts)
}
