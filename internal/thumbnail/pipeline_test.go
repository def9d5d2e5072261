package thumbnail

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/edits/internal/db"
)

type fakeSource struct {
	mu       sync.Mutex
	edits    map[int64]*db.EditThumbnailSource
	err      error
	failures []db.RecordThumbnailFailureParams
}

func (f *fakeSource) RecordThumbnailFailure(_ context.Context, arg *db.RecordThumbnailFailureParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, *arg)
	return nil
}

func (f *fakeSource) GetEditThumbnailSource(_ context.Context, id int64) (*db.EditThumbnailSource, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.edits[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

func strPtr(s string) *string { return &s }

func newTestProcessor(t *testing.T, bin string, src *fakeSource) (*Processor, *harness) {
	t.Helper()
	h := newHarness(t, bin, Config{})
	return NewProcessor(h.deriver, src, h.deriver.logger), h
}

func TestProcessor_SkipsEditsThatHaveThumbnail(t *testing.T) {
	src := &fakeSource{edits: map[int64]*db.EditThumbnailSource{
		42: {ID: 42, VideoRef: "https://example/video1.mp4", ThumbnailRef: strPtr("edits/thumbnails/x.jpg")},
	}}
	p, h := newTestProcessor(t, copyingFFmpeg(t, writeJPEG(t, 64, 36)), src)

	res := p.Process(context.Background(), 42, false)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, "edits/thumbnails/x.jpg", res.Ref)
	assert.Empty(t, h.writer.calls)
}

func TestProcessor_ForceRederives(t *testing.T) {
	src := &fakeSource{edits: map[int64]*db.EditThumbnailSource{
		42: {ID: 42, VideoRef: "https://example/video1.mp4", ThumbnailRef: strPtr("edits/thumbnails/x.jpg")},
	}}
	p, h := newTestProcessor(t, copyingFFmpeg(t, writeJPEG(t, 64, 36)), src)

	res := p.Process(context.Background(), 42, true)
	require.True(t, res.OK(), "%v", res.Err)
	require.Len(t, h.writer.calls, 1)
}

func TestProcessor_MissingEditIsSkipped(t *testing.T) {
	p, h := newTestProcessor(t, stubFFmpeg(t, `exit 1`), &fakeSource{})

	res := p.Process(context.Background(), 99, false)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrEditNotFound)
	assert.Empty(t, h.logLines(t, "thumbnail derivation failed"))
}

func TestProcessor_LoadErrorFails(t *testing.T) {
	p, h := newTestProcessor(t, stubFFmpeg(t, `exit 1`), &fakeSource{err: errors.New("connection refused")})

	res := p.Process(context.Background(), 5, false)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPersist)
	assert.Len(t, h.logLines(t, "thumbnail derivation failed"), 1)
}

func TestProcessor_InvalidIdentifier(t *testing.T) {
	p, _ := newTestProcessor(t, stubFFmpeg(t, `exit 1`), &fakeSource{})

	res := p.Process(context.Background(), 0, false)
	assert.ErrorIs(t, res.Err, ErrNoIdentifier)
}

type fakeEnqueuer struct {
	params []db.EnqueueThumbnailJobParams
	err    error
}

func (f *fakeEnqueuer) EnqueueThumbnailJob(_ context.Context, arg *db.EnqueueThumbnailJobParams) (*db.ThumbnailJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.params = append(f.params, *arg)
	return &db.ThumbnailJob{ID: int64(len(f.params)), EditID: arg.EditID, Force: arg.Force, Status: db.ThumbnailJobStatusQueued}, nil
}

func TestPostgresDispatcher(t *testing.T) {
	q := &fakeEnqueuer{}
	d := NewPostgresDispatcher(q, nil)

	require.NoError(t, d.Dispatch(context.Background(), 42, true))
	assert.Equal(t, []db.EnqueueThumbnailJobParams{{EditID: 42, Force: true}}, q.params)

	q.err = errors.New("db down")
	err := d.Dispatch(context.Background(), 43, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue thumbnail job")
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaDispatcher(t *testing.T) {
	w := &fakeWriter{}
	d := NewKafkaDispatcher(w, nil)

	require.NoError(t, d.Dispatch(context.Background(), 42, false))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"edit_id":42}`, string(w.msgs[0].Value))

	job, err := DecodeJob(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, Job{EditID: 42}, job)

	w.err = errors.New("no brokers")
	assert.Error(t, d.Dispatch(context.Background(), 43, false))
}

func TestDecodeJob_Rejects(t *testing.T) {
	_, err := DecodeJob([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeJob([]byte(`{"edit_id":0}`))
	assert.ErrorIs(t, err, ErrNoIdentifier)
}

func TestInlineDispatcher(t *testing.T) {
	src := &fakeSource{edits: map[int64]*db.EditThumbnailSource{
		42: {ID: 42, VideoRef: "https://example/video1.mp4"},
	}}
	p, h := newTestProcessor(t, copyingFFmpeg(t, writeJPEG(t, 64, 36)), src)

	require.NoError(t, NewInlineDispatcher(p).Dispatch(context.Background(), 42, false))
	require.Len(t, h.writer.calls, 1)
}

func TestInlineDispatcher_FailureIsNotAnError(t *testing.T) {
	src := &fakeSource{edits: map[int64]*db.EditThumbnailSource{
		43: {ID: 43, VideoRef: "https://example/broken.mp4"},
	}}
	p, _ := newTestProcessor(t, stubFFmpeg(t, `exit 1`), src)

	assert.NoError(t, NewInlineDispatcher(p).Dispatch(context.Background(), 43, false))
	assert.Equal(t, []db.RecordThumbnailFailureParams{
		{EditID: 43, VideoRef: "https://example/broken.mp4", Reason: "extraction_failed"},
	}, src.failures)
}

func TestProcessor_CancelledAttemptIsNotRecorded(t *testing.T) {
	src := &fakeSource{edits: map[int64]*db.EditThumbnailSource{
		44: {ID: 44, VideoRef: "https://example/huge.mp4"},
	}}
	p, _ := newTestProcessor(t, copyingFFmpeg(t, writeJPEG(t, 64, 36)), src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.Process(ctx, 44, false)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, src.failures)
}

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []*db.ThumbnailJob
	succeeded []int64
	failed    map[int64]string
	recovered int
	failedOld int
}

func (f *fakeQueue) DequeueThumbnailJob(context.Context) (*db.ThumbnailJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, pgx.ErrNoRows
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeQueue) MarkThumbnailJobSucceeded(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.succeeded = append(f.succeeded, id)
	return nil
}

func (f *fakeQueue) MarkThumbnailJobFailed(_ context.Context, arg *db.MarkThumbnailJobFailedParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[int64]string{}
	}
	f.failed[arg.ID] = *arg.LastError
	return nil
}

func (f *fakeQueue) RecoverStuckThumbnailJobs(context.Context, time.Duration) (int64, error) {
	f.recovered++
	return 2, nil
}

func (f *fakeQueue) FailExcessiveRetryThumbnailJobs(context.Context, int32) (int64, error) {
	f.failedOld++
	return 0, nil
}

func TestWorker_DrainMarksJobs(t *testing.T) {
	src := &fakeSource{edits: map[int64]*db.EditThumbnailSource{
		42: {ID: 42, VideoRef: "https://example/video1.mp4"},
		43: {ID: 43, VideoRef: "https://example/video2.mp4", ThumbnailRef: strPtr("edits/thumbnails/y.jpg")},
	}}
	p, _ := newTestProcessor(t, copyingFFmpeg(t, writeJPEG(t, 64, 36)), src)
	q := &fakeQueue{jobs: []*db.ThumbnailJob{
		{ID: 1, EditID: 42},
		{ID: 2, EditID: 43},
		{ID: 3, EditID: 404},
	}}

	n := NewWorker(q, p, nil).Drain(context.Background())
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 3}, q.succeeded)
	assert.Empty(t, q.failed)
}

func TestWorker_DrainRecordsFailure(t *testing.T) {
	src := &fakeSource{edits: map[int64]*db.EditThumbnailSource{
		43: {ID: 43, VideoRef: "https://example/broken.mp4"},
	}}
	p, _ := newTestProcessor(t, stubFFmpeg(t, `exit 1`), src)
	q := &fakeQueue{jobs: []*db.ThumbnailJob{{ID: 7, EditID: 43}}}

	NewWorker(q, p, nil).Drain(context.Background())
	assert.Empty(t, q.succeeded)
	require.Contains(t, q.failed, int64(7))
	assert.Contains(t, q.failed[7], "frame extraction failed")
}

func TestWorker_RunWakesAndStops(t *testing.T) {
	src := &fakeSource{edits: map[int64]*db.EditThumbnailSource{
		42: {ID: 42, VideoRef: "https://example/video1.mp4"},
	}}
	p, _ := newTestProcessor(t, copyingFFmpeg(t, writeJPEG(t, 64, 36)), src)
	q := &fakeQueue{}
	w := NewWorker(q, p, nil)
	w.poll = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		w.Run(ctx, wake)
		close(done)
	}()

	q.mu.Lock()
	q.jobs = append(q.jobs, &db.ThumbnailJob{ID: 1, EditID: 42})
	q.mu.Unlock()
	wake <- struct{}{}

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.succeeded) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorker_Maintain(t *testing.T) {
	q := &fakeQueue{}
	NewWorker(q, nil, nil).Maintain(context.Background())
	assert.Equal(t, 1, q.recovered)
	assert.Equal(t, 1, q.failedOld)
}

type fakeLister struct {
	edits []*db.EditThumbnailSource
}

func (f *fakeLister) ListEditsMissingThumbnail(_ context.Context, limit int32) ([]*db.EditThumbnailSource, error) {
	if int(limit) < len(f.edits) {
		return f.edits[:limit], nil
	}
	return f.edits, nil
}

type recordingDispatcher struct {
	ids  []int64
	fail map[int64]bool
}

func (r *recordingDispatcher) Dispatch(_ context.Context, editID int64, _ bool) error {
	if r.fail[editID] {
		return errors.New("queue full")
	}
	r.ids = append(r.ids, editID)
	return nil
}

func TestBackfill(t *testing.T) {
	lister := &fakeLister{edits: []*db.EditThumbnailSource{{ID: 1}, {ID: 2}, {ID: 3}}}
	d := &recordingDispatcher{fail: map[int64]bool{2: true}}

	n, err := Backfill(context.Background(), lister, d, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, d.ids)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func TestConsumer_ProcessesAndCommits(t *testing.T) {
	src := &fakeSource{edits: map[int64]*db.EditThumbnailSource{
		42: {ID: 42, VideoRef: "https://example/video1.mp4"},
	}}
	p, h := newTestProcessor(t, copyingFFmpeg(t, writeJPEG(t, 64, 36)), src)

	payload, err := json.Marshal(Job{EditID: 42})
	require.NoError(t, err)
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 10, Value: []byte("garbage")},
		{Offset: 11, Value: payload},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewConsumer(r, p, nil).Run(ctx) }()

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.committed) == 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{10, 11}, r.committed)
	h.writer.mu.Lock()
	defer h.writer.mu.Unlock()
	assert.Len(t, h.writer.calls, 1)
}

var hexColor = regexp.MustCompile(`^#[0-9a-f]{6}$`)

func TestPlaceholderGradient(t *testing.T) {
	a := PlaceholderGradient(42)
	assert.Equal(t, a, PlaceholderGradient(42), "gradient must be deterministic")
	assert.Regexp(t, hexColor, a.Start)
	assert.Regexp(t, hexColor, a.End)
	assert.NotEqual(t, a.Start, a.End)
	assert.Equal(t, 135, a.Angle)

	distinct := map[Gradient]bool{}
	for id := int64(1); id <= 20; id++ {
		distinct[PlaceholderGradient(id)] = true
	}
	assert.Greater(t, len(distinct), 15)
}

func TestGradientLUTRange(t *testing.T) {
	assert.Equal(t, byte(32), gradientLUT[0])
	assert.Equal(t, byte(224), gradientLUT[255])
	for i := 1; i < len(gradientLUT); i++ {
		assert.GreaterOrEqual(t, gradientLUT[i], gradientLUT[i-1])
	}
}

func TestPlaceholderSVG(t *testing.T) {
	g := PlaceholderGradient(7)
	svg := string(PlaceholderSVG(7, "  <ämv> edit"))

	assert.True(t, strings.HasPrefix(svg, "<svg "))
	assert.Contains(t, svg, g.Start)
	assert.Contains(t, svg, g.End)
	assert.Contains(t, svg, ">&lt;</text>")

	svg = string(PlaceholderSVG(7, "ämv"))
	assert.Contains(t, svg, ">Ä</text>")

	assert.NotContains(t, string(PlaceholderSVG(7, "")), "<text")
}
