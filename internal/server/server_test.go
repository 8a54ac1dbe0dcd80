package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/labreport/constants"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
)

// fakeQueue runs submissions inline.
type fakeQueue struct {
	mu   sync.Mutex
	reqs []entity.AnalysisRequest
	res  entity.PipelineResult
}

func (q *fakeQueue) Submit(_ context.Context, req entity.AnalysisRequest) <-chan entity.PipelineResult {
	q.mu.Lock()
	q.reqs = append(q.reqs, req)
	q.mu.Unlock()
	ch := make(chan entity.PipelineResult, 1)
	ch <- q.res
	return ch
}

func (q *fakeQueue) Shutdown(context.Context) {}

type memHistory struct {
	mu   sync.Mutex
	recs []entity.HistoryRecord
}

func (m *memHistory) Append(_ context.Context, r entity.StructuredReport) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, _ := json.Marshal(r)
	id := int64(len(m.recs) + 1)
	m.recs = append([]entity.HistoryRecord{{ID: id, Title: r.Title, Summary: r.CoreConclusion, FullPayload: string(b)}}, m.recs...)
	return id, nil
}

func (m *memHistory) ListAll(context.Context) ([]entity.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.HistoryRecord(nil), m.recs...), nil
}

func (m *memHistory) Get(_ context.Context, id int64) (*entity.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memHistory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.recs[:0]
	for _, r := range m.recs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	m.recs = out
	return nil
}

type stubExporter struct{ data []byte }

func (s stubExporter) ExportHistoryXLSX(context.Context) ([]byte, error) { return s.data, nil }

var sampleReport = entity.StructuredReport{
	Title:            "血常规",
	CoreConclusion:   "轻度贫血",
	AbnormalAnalysis: "血红蛋白偏低",
	LifeAdvice:       "复查",
}

func newTestService(t *testing.T) (*ReportService, *fakeQueue, *memHistory) {
	t.Helper()
	q := &fakeQueue{res: entity.Success(sampleReport, false)}
	h := &memHistory{}
	if _, err := h.Append(context.Background(), sampleReport); err != nil {
		t.Fatal(err)
	}
	defaults := entity.Credentials{VisionKey: "default-vision", ChatKey: "default-chat"}
	svc := NewReportService(q, h, stubExporter{data: []byte("xlsx")}, defaults, nil, WithImageRoot(t.TempDir()))
	return svc, q, h
}

// writeImage places a small jpeg under the service's image root.
func writeImage(t *testing.T, svc *ReportService) string {
	t.Helper()
	p := filepath.Join(svc.imageRoot, "report.jpg")
	if err := os.WriteFile(p, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAnalyzeMergesDefaultCredentials(t *testing.T) {
	svc, q, _ := newTestService(t)
	img := writeImage(t, svc)

	res, err := svc.Analyze(context.Background(), AnalyzeInput{ImagePath: img, Credentials: entity.Credentials{ChatKey: "mine"}})
	if err != nil || !res.OK() {
		t.Fatalf("Analyze() = %+v, %v", res, err)
	}
	got := q.reqs[0].Credentials
	if got.VisionKey != "default-vision" || got.ChatKey != "mine" {
		t.Fatalf("credentials = %+v, want merged", got)
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	svc, q, _ := newTestService(t)
	txt := filepath.Join(svc.imageRoot, "notes.txt")
	_ = os.WriteFile(txt, []byte("x"), 0o644)
	dir := filepath.Join(svc.imageRoot, "scans.png")
	_ = os.Mkdir(dir, 0o755)

	for _, path := range []string{"", "  ", txt, dir, filepath.Join(svc.imageRoot, "missing.png")} {
		if _, err := svc.Analyze(context.Background(), AnalyzeInput{ImagePath: path}); !errors.Is(err, common.ErrInvalidInput) {
			t.Fatalf("Analyze(%q) error = %v, want ErrInvalidInput", path, err)
		}
	}
	if len(q.reqs) != 0 {
		t.Fatalf("submitted %d jobs, want 0", len(q.reqs))
	}
}

func TestAnalyzeRejectsPathsOutsideImageRoot(t *testing.T) {
	svc, q, _ := newTestService(t)
	outside := filepath.Join(t.TempDir(), "secret.jpg")
	if err := os.WriteFile(outside, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(svc.imageRoot, "link.jpg")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlink: %v", err)
	}
	dotdot := filepath.Join(svc.imageRoot, "..", filepath.Base(filepath.Dir(outside)), "secret.jpg")

	for _, path := range []string{outside, link, dotdot} {
		if _, err := svc.Analyze(context.Background(), AnalyzeInput{ImagePath: path}); !errors.Is(err, common.ErrInvalidInput) {
			t.Fatalf("Analyze(%q) error = %v, want ErrInvalidInput", path, err)
		}
	}
	if len(q.reqs) != 0 {
		t.Fatalf("submitted %d jobs, want 0", len(q.reqs))
	}
}

func TestAnalyzeWithoutImageRootRejectsPaths(t *testing.T) {
	q := &fakeQueue{res: entity.Success(sampleReport, false)}
	svc := NewReportService(q, &memHistory{}, nil, entity.Credentials{}, nil)
	img := filepath.Join(t.TempDir(), "report.jpg")
	_ = os.WriteFile(img, []byte("jpeg"), 0o644)

	if _, err := svc.Analyze(context.Background(), AnalyzeInput{ImagePath: img}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("Analyze() error = %v, want ErrInvalidInput", err)
	}
}

func TestAnalyzeFollowsSymlinkInsideRoot(t *testing.T) {
	svc, q, _ := newTestService(t)
	img := writeImage(t, svc)
	link := filepath.Join(svc.imageRoot, "alias.jpg")
	if err := os.Symlink(img, link); err != nil {
		t.Skipf("symlink: %v", err)
	}
	if _, err := svc.Analyze(context.Background(), AnalyzeInput{ImagePath: link}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(q.reqs) != 1 || filepath.Base(q.reqs[0].ImagePath) != "report.jpg" {
		t.Fatalf("requests = %+v, want resolved target", q.reqs)
	}
}

func TestHTTPAnalyzeOutsideRootIsBadRequest(t *testing.T) {
	svc, q, _ := newTestService(t)
	srv := httptest.NewServer(NewHTTPHandler(svc, HTTPConfig{}, nil))
	defer srv.Close()

	outside := filepath.Join(t.TempDir(), "passwd.png")
	if err := os.WriteFile(outside, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(map[string]string{"image_path": outside})
	resp, err := http.Post(srv.URL+"/v1/analyses", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if len(q.reqs) != 0 {
		t.Fatalf("submitted %d jobs, want 0", len(q.reqs))
	}
}

func TestHTTPAnalyzeJSON(t *testing.T) {
	svc, _, _ := newTestService(t)
	srv := httptest.NewServer(NewHTTPHandler(svc, HTTPConfig{}, nil))
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"image_path": writeImage(t, svc)})
	resp, err := http.Post(srv.URL+"/v1/analyses", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatal("missing request id header")
	}
	var got entity.PipelineResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Code != constants.CodeOK || got.Report == nil || *got.Report != sampleReport {
		t.Fatalf("result = %+v", got)
	}
}

func TestHTTPAnalyzeMultipartUpload(t *testing.T) {
	svc, q, _ := newTestService(t)
	uploads := t.TempDir()
	srv := httptest.NewServer(NewHTTPHandler(svc, HTTPConfig{UploadDir: uploads}, nil))
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("image", "scan.PNG")
	_, _ = fw.Write([]byte("png bytes"))
	_ = mw.Close()

	resp, err := http.Post(srv.URL+"/v1/analyses", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(q.reqs) != 1 || !strings.HasSuffix(q.reqs[0].ImagePath, ".png") {
		t.Fatalf("requests = %+v", q.reqs)
	}
	left, _ := os.ReadDir(uploads)
	if len(left) != 0 {
		t.Fatalf("upload dir has %d files, want cleanup", len(left))
	}
}

func TestHTTPAnalyzeFailureStatus(t *testing.T) {
	svc, q, _ := newTestService(t)
	q.res = entity.Failed(constants.FailureExtractionFailed, constants.MsgExtractionFailed)
	srv := httptest.NewServer(NewHTTPHandler(svc, HTTPConfig{}, nil))
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"image_path": writeImage(t, svc)})
	resp, err := http.Post(srv.URL+"/v1/analyses", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var got entity.PipelineResult
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if got.Code != constants.CodeExtractionFailed || got.Failure == nil {
		t.Fatalf("result = %+v", got)
	}
}

func TestHTTPHistoryRoutes(t *testing.T) {
	svc, _, h := newTestService(t)
	srv := httptest.NewServer(NewHTTPHandler(svc, HTTPConfig{}, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/history")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Records []HistoryEntry `json:"records"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Records) != 1 || list.Records[0].Report == nil || list.Records[0].Report.LifeAdvice != "复查" {
		t.Fatalf("records = %+v", list.Records)
	}

	resp, _ = http.Get(srv.URL + "/v1/history/1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /v1/history/1 status = %d", resp.StatusCode)
	}
	resp, _ = http.Get(srv.URL + "/v1/history/abc")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("GET /v1/history/abc status = %d, want 400", resp.StatusCode)
	}

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/history/1", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("DELETE #%d status = %d, want 204", i+1, resp.StatusCode)
		}
	}
	if len(h.recs) != 0 {
		t.Fatalf("records left = %d", len(h.recs))
	}

	resp, _ = http.Get(srv.URL + "/v1/history/1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET deleted status = %d, want 404", resp.StatusCode)
	}
}

func TestHTTPExportAndHealth(t *testing.T) {
	svc, _, _ := newTestService(t)
	var healthy atomic.Bool
	healthy.Store(true)
	cfg := HTTPConfig{Health: func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("down")
	}}
	srv := httptest.NewServer(NewHTTPHandler(svc, cfg, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/history/export")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != xlsxContentType {
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	resp2, _ := http.Get(srv.URL + "/health")
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp2.StatusCode)
	}
	healthy.Store(false)
	resp3, _ := http.Get(srv.URL + "/health")
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want 503", resp3.StatusCode)
	}
}

func dialBufconn(t *testing.T, svc *ReportService) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.UnaryInterceptor(UnaryRequestLogger(nil)))
	RegisterReportServiceServer(gs, NewGRPCServer(svc, nil))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func method(name string) string { return "/" + ReportServiceName + "/" + name }

func TestGRPCStartAnalysisAndHistory(t *testing.T) {
	svc, _, _ := newTestService(t)
	conn := dialBufconn(t, svc)
	ctx := context.Background()

	in, _ := structpb.NewStruct(map[string]any{"image_path": writeImage(t, svc)})
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, method("StartAnalysis"), in, out); err != nil {
		t.Fatalf("StartAnalysis error = %v", err)
	}
	m := out.AsMap()
	if m["code"] != float64(constants.CodeOK) {
		t.Fatalf("code = %v, want 200", m["code"])
	}
	if rep, _ := m["report"].(map[string]any); rep["title"] != "血常规" {
		t.Fatalf("report = %v", m["report"])
	}

	hist := &structpb.Struct{}
	if err := conn.Invoke(ctx, method("GetHistory"), &emptypb.Empty{}, hist); err != nil {
		t.Fatalf("GetHistory error = %v", err)
	}
	if recs, _ := hist.AsMap()["records"].([]any); len(recs) != 1 {
		t.Fatalf("records = %v", hist.AsMap()["records"])
	}

	del, _ := structpb.NewStruct(map[string]any{"id": 1})
	for i := 0; i < 2; i++ {
		if err := conn.Invoke(ctx, method("DeleteRecord"), del, &emptypb.Empty{}); err != nil {
			t.Fatalf("DeleteRecord #%d error = %v", i+1, err)
		}
	}

	xlsx := &wrapperspb.BytesValue{}
	if err := conn.Invoke(ctx, method("ExportHistory"), &emptypb.Empty{}, xlsx); err != nil {
		t.Fatalf("ExportHistory error = %v", err)
	}
	if string(xlsx.GetValue()) != "xlsx" {
		t.Fatalf("export = %q", xlsx.GetValue())
	}
}

func TestGRPCInvalidArgument(t *testing.T) {
	svc, _, _ := newTestService(t)
	conn := dialBufconn(t, svc)

	in, _ := structpb.NewStruct(map[string]any{"image_path": ""})
	err := conn.Invoke(context.Background(), method("StartAnalysis"), in, &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("StartAnalysis code = %v, want InvalidArgument", status.Code(err))
	}

	del, _ := structpb.NewStruct(map[string]any{"id": 0})
	err = conn.Invoke(context.Background(), method("DeleteRecord"), del, &emptypb.Empty{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("DeleteRecord code = %v, want InvalidArgument", status.Code(err))
	}
}
