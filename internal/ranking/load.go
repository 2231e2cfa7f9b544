package ranking

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/purchase-predictor/internal/config"
	"github.com/sells-group/purchase-predictor/internal/dataset"
	"github.com/sells-group/purchase-predictor/internal/features"
	"github.com/sells-group/purchase-predictor/internal/model"
	"github.com/sells-group/purchase-predictor/internal/predictor"
)

// Load reads the model, the dataset and the feature-name list concurrently
// and builds the feature matrix. Every failure is logged. The returned
// engine is always usable; when err is non-nil it is degraded and Ready
// reports ErrNotReady.
func Load(ctx context.Context, cfg *config.Config) (*Engine, error) {
	start := time.Now()

	var (
		reg      predictor.Regressor
		table    *dataset.Table
		services []model.Service
		names    []string

		modelErr, dataErr, namesErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		reg, modelErr = loadModel(cfg)
		logLoad("model", modelSource(cfg), modelErr)
		return nil
	})
	g.Go(func() error {
		table, services, dataErr = loadDataset(ctx, cfg)
		logLoad("dataset", cfg.Artifacts.DatasetPath, dataErr)
		return nil
	})
	g.Go(func() error {
		names, namesErr = features.LoadNames(cfg.Artifacts.FeaturesPath)
		logLoad("feature list", cfg.Artifacts.FeaturesPath, namesErr)
		return nil
	})
	_ = g.Wait()

	var (
		matrix    *features.Matrix
		matrixErr error
	)
	if dataErr == nil && namesErr == nil {
		matrix, matrixErr = features.DefaultPipeline().Build(table, names)
		if matrixErr != nil {
			zap.L().Error("ranking: feature pipeline failed", zap.Error(matrixErr))
		}
	}

	loadErr := errors.Join(modelErr, dataErr, namesErr, matrixErr)
	e := New(Parts{Model: reg, Services: services, Matrix: matrix, LoadErr: loadErr})

	zap.L().Info("ranking: artifacts loaded",
		zap.String("engine", e.ID()),
		zap.Int("services", len(services)),
		zap.Int("features", matrix.Width()),
		zap.Bool("ready", e.Ready() == nil),
		zap.Duration("elapsed", time.Since(start)),
	)
	return e, loadErr
}

func loadModel(cfg *config.Config) (predictor.Regressor, error) {
	if cfg.Model.Endpoint != "" {
		timeout := time.Duration(cfg.Model.TimeoutSecs) * time.Second
		return predictor.NewRemote(cfg.Model.Endpoint, timeout, cfg.Model.MaxAttempts), nil
	}
	return predictor.Load(cfg.Artifacts.ModelPath)
}

func modelSource(cfg *config.Config) string {
	if cfg.Model.Endpoint != "" {
		return cfg.Model.Endpoint
	}
	return cfg.Artifacts.ModelPath
}

func loadDataset(ctx context.Context, cfg *config.Config) (*dataset.Table, []model.Service, error) {
	t, err := dataset.Load(ctx, cfg.Artifacts.DatasetPath, dataset.Options{
		Table:     cfg.Dataset.Table,
		Delimiter: delimiter(cfg.Dataset.Delimiter),
	})
	if err != nil {
		return nil, nil, err
	}
	services, err := dataset.ParseServices(t)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ranking: parse %s", cfg.Artifacts.DatasetPath)
	}
	return t, services, nil
}

// delimiter maps the configured delimiter to a rune. "\t" and "tab" mean
// a tab; empty means the reader default.
func delimiter(s string) rune {
	switch s {
	case "":
		return 0
	case `\t`, "tab":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func logLoad(what, source string, err error) {
	if err != nil {
		zap.L().Error("ranking: failed to load "+what, zap.String("source", source), zap.Error(err))
		return
	}
	zap.L().Debug("ranking: loaded "+what, zap.String("source", source))
}
