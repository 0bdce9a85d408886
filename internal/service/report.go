package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/target/policy-analysis-api/internal/domain/model"
)

const maxStorageNameRunes = 50

// render produces the report and hands it to the artifact store. Every failure
// here is logged and swallowed. The local copy is only removed once stored.
func (r *jobRun) render(ctx context.Context, data map[string]any) (string, string) {
	o := r.o
	if o.renderer == nil {
		return "", ""
	}

	start := time.Now()
	path, err := o.renderer.Render(ctx, data, model.RenderInput{
		JobID:      r.id,
		ClientName: r.req.ClientName,
		OutputDir:  o.reportsDir,
	})
	r.stageMetric(stageRender, 0, start, err)
	if err != nil {
		o.logger.WarnContext(ctx, "report generation failed", "job_id", r.id, "error", err)
		return "", ""
	}
	o.logger.InfoContext(ctx, "report generated", "job_id", r.id, "path", path)

	if o.artifacts == nil {
		return path, ""
	}
	return r.handOff(ctx, path)
}

// handOff uploads a rendered report and removes the local copy once stored.
// On upload failure the local path is kept and the janitor sweeps it later.
func (r *jobRun) handOff(ctx context.Context, path string) (string, string) {
	o := r.o
	start := time.Now()
	storagePath, err := o.artifacts.Store(ctx, path, ReportStorageKey(r.req, r.id, filepath.Ext(path)))
	r.stageMetric(stageStore, 0, start, err)
	if err != nil {
		o.logger.ErrorContext(ctx, "report upload failed, keeping local copy", "job_id", r.id, "path", path, "error", err)
		return path, ""
	}
	o.logger.InfoContext(ctx, "report uploaded", "job_id", r.id, "storage_path", storagePath)

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.WarnContext(ctx, "failed to remove local report", "job_id", r.id, "path", path, "error", err)
		return path, storagePath
	}
	return "", storagePath
}

// ReportStorageKey builds "{tenant}/{client}/reports/{id}_{name}_Analysis{ext}".
func ReportStorageKey(req model.AnalysisRequest, id, ext string) string {
	tenant := strings.TrimSpace(req.TenantID)
	if tenant == "" {
		tenant = model.DefaultTenantID
	}
	client := strings.TrimSpace(req.ClientID)
	if client == "" {
		client = model.DefaultClientID
	}
	safe := strings.NewReplacer(" ", "_", "/", "_").Replace(req.ClientName)
	if r := []rune(safe); len(r) > maxStorageNameRunes {
		safe = string(r[:maxStorageNameRunes])
	}
	return fmt.Sprintf("%s/%s/reports/%s_%s_Analysis%s", tenant, client, id, safe, ext)
}

// roundSeconds rounds d to hundredths of a second.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
