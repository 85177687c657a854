package use_case

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"

	"github.com/trunov/csvimages/internal/entities"
	"github.com/trunov/csvimages/internal/jobstore"
	"github.com/trunov/csvimages/internal/validation"
)

type memDocs struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
	err     error
}

func newMemDocs() *memDocs {
	return &memDocs{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (m *memDocs) Put(_ context.Context, key, _ string, payload []byte, meta map[string]string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = payload
	m.meta[key] = meta
	return nil
}

func (m *memDocs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, entities.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type fakeScheduler struct {
	submitted []string
	jobs      *jobstore.Memory
	seen      []entities.Phase
	err       error
}

func (f *fakeScheduler) Submit(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	job, _ := f.jobs.Get(ctx, id)
	f.seen = append(f.seen, job.Phase)
	f.submitted = append(f.submitted, id)
	return nil
}

const validCSV = "sno,product_name,image_urls\n1,Widget A,http://example.com/a.jpg\n"

func setup() (*useCase, *memDocs, *jobstore.Memory, *fakeScheduler) {
	docs := newMemDocs()
	jobs := jobstore.NewMemory()
	sched := &fakeScheduler{jobs: jobs}
	v := validation.New([]string{"sno", "product_name", "image_urls"})
	return New(v, docs, jobs, sched), docs, jobs, sched
}

func TestUploadCSV_StoresAndSchedules(t *testing.T) {
	uc, docs, jobs, sched := setup()
	ctx := context.Background()

	id, err := uc.UploadCSV(ctx, "products.csv", "text/csv", []byte(validCSV))
	if err != nil {
		t.Fatalf("UploadCSV: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(id) {
		t.Fatalf("bad request id %q", id)
	}
	if string(docs.objects[id+".csv"]) != validCSV {
		t.Fatalf("original document not stored")
	}
	if docs.meta[id+".csv"]["original-filename"] != "products.csv" {
		t.Fatalf("original filename metadata missing")
	}
	if len(sched.submitted) != 1 || sched.submitted[0] != id {
		t.Fatalf("job not scheduled: %v", sched.submitted)
	}
	if sched.seen[0] != entities.PhasePending {
		t.Fatalf("job must be Pending before scheduling, was %q", sched.seen[0])
	}
	if job, err := jobs.Get(ctx, id); err != nil || job.Status() != "Pending" {
		t.Fatalf("status: %+v %v", job, err)
	}
}

func TestUploadCSV_InvalidInputStoresNothing(t *testing.T) {
	uc, docs, _, sched := setup()

	_, err := uc.UploadCSV(context.Background(), "p.csv", "text/csv", []byte("name,sno,image_urls\n1,A,http://x.com/a.jpg\n"))
	var inErr *InputError
	if !errors.As(err, &inErr) || !errors.Is(err, validation.ErrHeaderMismatch) {
		t.Fatalf("want header mismatch input error, got %v", err)
	}
	if len(docs.objects) != 0 || len(sched.submitted) != 0 {
		t.Fatalf("invalid upload must not be stored or scheduled")
	}
}

func TestUploadCSV_StorageFailureIsNotInputError(t *testing.T) {
	uc, docs, _, sched := setup()
	docs.err = errors.New("s3 down")

	_, err := uc.UploadCSV(context.Background(), "p.csv", "text/csv", []byte(validCSV))
	var inErr *InputError
	if err == nil || errors.As(err, &inErr) {
		t.Fatalf("want server side error, got %v", err)
	}
	if len(sched.submitted) != 0 {
		t.Fatalf("nothing should be scheduled")
	}
}

func TestUploadCSV_SchedulingFailureMarksJobFailed(t *testing.T) {
	uc, docs, jobs, sched := setup()
	sched.err = errors.New("dispatcher is shutting down")

	if _, err := uc.UploadCSV(context.Background(), "p.csv", "text/csv", []byte(validCSV)); err == nil {
		t.Fatalf("expected error")
	}
	if len(docs.objects) != 1 {
		t.Fatalf("original should have been stored before scheduling")
	}
	for key := range docs.objects {
		id := key[:32]
		job, err := jobs.Get(context.Background(), id)
		if err != nil || job.Phase != entities.PhaseFailed {
			t.Fatalf("job should be Failed, got %+v %v", job, err)
		}
	}
}

func TestStatusAndDocument(t *testing.T) {
	uc, _, _, _ := setup()
	ctx := context.Background()

	if _, err := uc.Status(ctx, "unknown"); !errors.Is(err, entities.ErrJobNotFound) {
		t.Fatalf("want ErrJobNotFound, got %v", err)
	}
	if _, err := uc.Document(ctx, "unknown"); !errors.Is(err, entities.ErrDocumentNotFound) {
		t.Fatalf("want ErrDocumentNotFound, got %v", err)
	}

	id, _ := uc.UploadCSV(ctx, "p.csv", "text/csv", []byte(validCSV))
	rc, err := uc.Document(ctx, id)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != validCSV {
		t.Fatalf("unexpected document %q", b)
	}
}
