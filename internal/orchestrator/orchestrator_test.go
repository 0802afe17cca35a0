package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nself/content-acquisition/internal/clock"
	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/siblings"
	"github.com/nself/content-acquisition/internal/store"
)

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// newTestOrchestrator builds an Orchestrator directly (bypassing New) so
// tests can set a tiny poll interval and bounded attempts without real
// wall-clock waits.
func newTestOrchestrator(s store.PipelineStore, clients *siblings.Clients) *Orchestrator {
	return &Orchestrator{
		store:                   s,
		clients:                 clients,
		clock:                   clock.Real{},
		pollInterval:            time.Millisecond,
		downloadPollMaxAttempts: 3,
		encodingPollMaxAttempts: 3,
		log:                     zerolog.Nop(),
	}
}

func newRun(s store.PipelineStore, magnetURL string) int64 {
	run := model.NewPipelineRun("acct-1", "The Matrix", "movie", model.TriggerManual, model.PipelineMetadata{
		MagnetURL: magnetURL,
	})
	id, err := s.CreatePipelineRun(context.Background(), run)
	if err != nil {
		panic(err)
	}
	return id
}

func TestExecuteHappyPathWithUnconfiguredOptionalSiblings(t *testing.T) {
	vpn := httptest.NewServer(jsonHandler(200, `{"active":true}`))
	defer vpn.Close()
	torrent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			jsonHandler(201, `{"id":"dl1"}`)(w, r)
			return
		}
		jsonHandler(200, `{"status":"completed","path":"/data/matrix.mkv"}`)(w, r)
	}))
	defer torrent.Close()

	s := store.NewMemory()
	clients := &siblings.Clients{
		VPN:      siblings.NewVPNClient(vpn.URL, time.Second),
		Torrent:  siblings.NewTorrentClient(torrent.URL, time.Second),
		Metadata: siblings.NewMetadataClient("", time.Second),
		Subtitle: siblings.NewSubtitleClient("", time.Second),
		Media:    siblings.NewMediaClient("", time.Second),
		Publish:  siblings.NewPublishClient("", time.Second),
	}
	o := newTestOrchestrator(s, clients)

	runID := newRun(s, "magnet:?xt=urn:btih:abc")
	if err := o.Execute(context.Background(), runID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	run, err := s.GetPipelineRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if run.Status != model.PipelineCompleted {
		t.Fatalf("Status = %v, want completed (error=%q)", run.Status, run.ErrorMessage)
	}
	if run.StageStatus(model.StageVPN) != model.StageCompleted {
		t.Errorf("vpn stage = %v, want completed", run.StageStatus(model.StageVPN))
	}
	if run.StageStatus(model.StageTorrent) != model.StageCompleted {
		t.Errorf("torrent stage = %v, want completed", run.StageStatus(model.StageTorrent))
	}
	if run.Metadata.DownloadPath != "/data/matrix.mkv" {
		t.Errorf("DownloadPath = %q", run.Metadata.DownloadPath)
	}
	for _, stage := range []model.Stage{model.StageMetadata, model.StageSubtitle, model.StageEncoding, model.StagePublishing} {
		if run.StageStatus(stage) != model.StageSkipped {
			t.Errorf("%s stage = %v, want skipped (unconfigured)", stage, run.StageStatus(stage))
		}
	}
}

func TestExecuteVPNInactiveWaits(t *testing.T) {
	vpn := httptest.NewServer(jsonHandler(200, `{"active":false,"status":"disconnected"}`))
	defer vpn.Close()

	s := store.NewMemory()
	clients := &siblings.Clients{
		VPN:     siblings.NewVPNClient(vpn.URL, time.Second),
		Torrent: siblings.NewTorrentClient("http://127.0.0.1:1", time.Second),
	}
	o := newTestOrchestrator(s, clients)
	runID := newRun(s, "magnet:?xt=urn:btih:abc")

	if err := o.Execute(context.Background(), runID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	run, err := s.GetPipelineRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if run.Status != model.PipelineVPNWaiting {
		t.Fatalf("Status = %v, want vpn_waiting", run.Status)
	}
	if run.ErrorMessage != "VPN is not active" {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
	if run.TorrentDLID != "" {
		t.Error("torrent stage should never have run while vpn is inactive")
	}
}

func TestExecuteVPNUnreachableWaits(t *testing.T) {
	s := store.NewMemory()
	clients := &siblings.Clients{
		VPN:     siblings.NewVPNClient("http://127.0.0.1:1", time.Second),
		Torrent: siblings.NewTorrentClient("http://127.0.0.1:1", time.Second),
	}
	o := newTestOrchestrator(s, clients)
	runID := newRun(s, "magnet:?xt=urn:btih:abc")

	if err := o.Execute(context.Background(), runID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	run, err := s.GetPipelineRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if run.Status != model.PipelineVPNWaiting {
		t.Fatalf("Status = %v, want vpn_waiting", run.Status)
	}
	if run.ErrorMessage != "vpn manager unreachable" {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
}

func TestExecuteTorrentSubmitHTTPErrorFailsPipeline(t *testing.T) {
	vpn := httptest.NewServer(jsonHandler(200, `{"active":true}`))
	defer vpn.Close()
	torrent := httptest.NewServer(jsonHandler(500, `boom`))
	defer torrent.Close()

	s := store.NewMemory()
	clients := &siblings.Clients{
		VPN:     siblings.NewVPNClient(vpn.URL, time.Second),
		Torrent: siblings.NewTorrentClient(torrent.URL, time.Second),
	}
	o := newTestOrchestrator(s, clients)
	runID := newRun(s, "magnet:?xt=urn:btih:abc")

	if err := o.Execute(context.Background(), runID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	run, err := s.GetPipelineRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if run.Status != model.PipelineFailed {
		t.Fatalf("Status = %v, want failed", run.Status)
	}
	if run.StageStatus(model.StageTorrent) != model.StageFailed {
		t.Errorf("torrent stage = %v, want failed", run.StageStatus(model.StageTorrent))
	}
}

func TestExecuteTorrentPollErroredFailsPipeline(t *testing.T) {
	vpn := httptest.NewServer(jsonHandler(200, `{"active":true}`))
	defer vpn.Close()
	torrent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			jsonHandler(201, `{"id":"dl1"}`)(w, r)
			return
		}
		jsonHandler(200, `{"status":"error"}`)(w, r)
	}))
	defer torrent.Close()

	s := store.NewMemory()
	clients := &siblings.Clients{
		VPN:     siblings.NewVPNClient(vpn.URL, time.Second),
		Torrent: siblings.NewTorrentClient(torrent.URL, time.Second),
	}
	o := newTestOrchestrator(s, clients)
	runID := newRun(s, "magnet:?xt=urn:btih:abc")

	if err := o.Execute(context.Background(), runID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	run, err := s.GetPipelineRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if run.Status != model.PipelineFailed {
		t.Fatalf("Status = %v, want failed", run.Status)
	}
	if run.ErrorMessage != "torrent download reported a terminal error" {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
}

func TestExecutePollTimeoutFailsPipeline(t *testing.T) {
	vpn := httptest.NewServer(jsonHandler(200, `{"active":true}`))
	defer vpn.Close()
	torrent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			jsonHandler(201, `{"id":"dl1"}`)(w, r)
			return
		}
		jsonHandler(200, `{"status":"downloading"}`)(w, r)
	}))
	defer torrent.Close()

	s := store.NewMemory()
	clients := &siblings.Clients{
		VPN:     siblings.NewVPNClient(vpn.URL, time.Second),
		Torrent: siblings.NewTorrentClient(torrent.URL, time.Second),
	}
	o := newTestOrchestrator(s, clients)
	runID := newRun(s, "magnet:?xt=urn:btih:abc")

	if err := o.Execute(context.Background(), runID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	run, err := s.GetPipelineRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if run.Status != model.PipelineFailed {
		t.Fatalf("Status = %v, want failed", run.Status)
	}
	if run.ErrorMessage != "Download timed out waiting for completion" {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
}

func TestExecuteOptionalStageHTTPErrorFailsPipelineAndStopsEarly(t *testing.T) {
	vpn := httptest.NewServer(jsonHandler(200, `{"active":true}`))
	defer vpn.Close()
	torrent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			jsonHandler(201, `{"id":"dl1"}`)(w, r)
			return
		}
		jsonHandler(200, `{"status":"completed","path":"/data/matrix.mkv"}`)(w, r)
	}))
	defer torrent.Close()
	metadataCalls := 0
	metadata := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metadataCalls++
		w.WriteHeader(500)
	}))
	defer metadata.Close()
	subtitleCalls := 0
	subtitle := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subtitleCalls++
		w.WriteHeader(200)
	}))
	defer subtitle.Close()

	s := store.NewMemory()
	clients := &siblings.Clients{
		VPN:      siblings.NewVPNClient(vpn.URL, time.Second),
		Torrent:  siblings.NewTorrentClient(torrent.URL, time.Second),
		Metadata: siblings.NewMetadataClient(metadata.URL, time.Second),
		Subtitle: siblings.NewSubtitleClient(subtitle.URL, time.Second),
		Media:    siblings.NewMediaClient("", time.Second),
		Publish:  siblings.NewPublishClient("", time.Second),
	}
	o := newTestOrchestrator(s, clients)
	runID := newRun(s, "magnet:?xt=urn:btih:abc")

	if err := o.Execute(context.Background(), runID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	run, err := s.GetPipelineRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if run.Status != model.PipelineFailed {
		t.Fatalf("Status = %v, want failed", run.Status)
	}
	if run.StageStatus(model.StageMetadata) != model.StageFailed {
		t.Errorf("metadata stage = %v, want failed", run.StageStatus(model.StageMetadata))
	}
	if subtitleCalls != 0 {
		t.Errorf("expected subtitle stage never to run once metadata failed the pipeline, got %d calls", subtitleCalls)
	}
}

func TestExecuteOptionalStageUnreachableSkips(t *testing.T) {
	vpn := httptest.NewServer(jsonHandler(200, `{"active":true}`))
	defer vpn.Close()
	torrent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			jsonHandler(201, `{"id":"dl1"}`)(w, r)
			return
		}
		jsonHandler(200, `{"status":"completed","path":"/data/matrix.mkv"}`)(w, r)
	}))
	defer torrent.Close()

	s := store.NewMemory()
	clients := &siblings.Clients{
		VPN:      siblings.NewVPNClient(vpn.URL, time.Second),
		Torrent:  siblings.NewTorrentClient(torrent.URL, time.Second),
		Metadata: siblings.NewMetadataClient("http://127.0.0.1:1", time.Second),
		Subtitle: siblings.NewSubtitleClient("http://127.0.0.1:1", time.Second),
		Media:    siblings.NewMediaClient("", time.Second),
		Publish:  siblings.NewPublishClient("", time.Second),
	}
	o := newTestOrchestrator(s, clients)
	runID := newRun(s, "magnet:?xt=urn:btih:abc")

	if err := o.Execute(context.Background(), runID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	run, err := s.GetPipelineRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if run.Status != model.PipelineCompleted {
		t.Fatalf("Status = %v, want completed (error=%q)", run.Status, run.ErrorMessage)
	}
	if run.StageStatus(model.StageMetadata) != model.StageSkipped {
		t.Errorf("metadata stage = %v, want skipped", run.StageStatus(model.StageMetadata))
	}
	if run.StageStatus(model.StageSubtitle) != model.StageSkipped {
		t.Errorf("subtitle stage = %v, want skipped", run.StageStatus(model.StageSubtitle))
	}
}

func TestExecuteResumeSkipsAlreadyCompletedStages(t *testing.T) {
	torrent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			jsonHandler(201, `{"id":"dl1"}`)(w, r)
			return
		}
		jsonHandler(200, `{"status":"completed","path":"/data/matrix.mkv"}`)(w, r)
	}))
	defer torrent.Close()

	s := store.NewMemory()
	clients := &siblings.Clients{
		VPN:      siblings.NewVPNClient("http://127.0.0.1:1", time.Second), // would fail the vpn stage if ever called
		Torrent:  siblings.NewTorrentClient(torrent.URL, time.Second),
		Metadata: siblings.NewMetadataClient("", time.Second),
		Subtitle: siblings.NewSubtitleClient("", time.Second),
		Media:    siblings.NewMediaClient("", time.Second),
		Publish:  siblings.NewPublishClient("", time.Second),
	}
	o := newTestOrchestrator(s, clients)
	runID := newRun(s, "magnet:?xt=urn:btih:abc")

	_, err := s.UpdatePipelineRun(context.Background(), runID, func(r *model.PipelineRun) error {
		now := time.Now()
		r.EnterStage(model.StageVPN, now)
		r.FinishStage(model.StageVPN, model.StageCompleted, now)
		return nil
	})
	if err != nil {
		t.Fatalf("seed completed vpn stage: %v", err)
	}

	if err := o.Execute(context.Background(), runID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	run, err := s.GetPipelineRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetPipelineRun: %v", err)
	}
	if run.Status != model.PipelineCompleted {
		t.Fatalf("Status = %v, want completed (error=%q)", run.Status, run.ErrorMessage)
	}
	if run.StageStatus(model.StageVPN) != model.StageCompleted {
		t.Errorf("vpn stage = %v, want still completed from the pre-seeded state", run.StageStatus(model.StageVPN))
	}
}
