package app

import (
	"time"

	"depmend/internal/adapters"
	"depmend/internal/core"
	"depmend/internal/ports"
	"depmend/internal/types"
)

// Config is the explicit configuration for one service instance,
// constructed once at process start and injected into every component.
// No component reads ambient global state.
type Config struct {
	ManifestPath   string
	BackupDir      string
	AuditTrailPath string
	WorkDir        string

	AuditTool   string
	PythonBin   string
	TestRunner  string
	ScanTimeout time.Duration
	PipTimeout  time.Duration
	TestTimeout time.Duration

	Thresholds     types.RollbackThresholds
	Criticality    types.CriticalityMap
	KnownExploited []string
	Retention      types.BackupRetentionPolicy
	MaxRetries     int
}

// DefaultConfig returns the baseline configuration; callers override
// fields before wiring.
func DefaultConfig() Config {
	return Config{
		ManifestPath:   "requirements.txt",
		BackupDir:      ".depmend/backups",
		AuditTrailPath: ".depmend/audit.jsonl",
		AuditTool:      "pip-audit",
		PythonBin:      "python3",
		TestRunner:     "pytest",
		ScanTimeout:    5 * time.Minute,
		PipTimeout:     10 * time.Minute,
		TestTimeout:    5 * time.Minute,
		Thresholds:     types.DefaultRollbackThresholds(),
		Criticality:    types.CriticalityMap{},
		Retention:      types.BackupRetentionPolicy{KeepDays: 14},
		MaxRetries:     3,
	}
}

// Service bundles the wired components behind their ports.
type Service struct {
	Config   Config
	Executor ports.ExecutorPort
	Audit    ports.AuditTrailPort
	Manifest ports.ManifestStorePort
	Backups  ports.BackupStorePort
	Provider ports.ScanProviderPort
	Parser   *core.ReportParser
	Assessor core.Assessor
	Clock    func() time.Time
}

// NewService wires the file-backed adapters. The audit trail must be
// closed by the caller when done.
func NewService(cfg Config) (Service, *adapters.FileAuditTrail, error) {
	trail, err := adapters.OpenFileAuditTrail(cfg.AuditTrailPath)
	if err != nil {
		return Service{}, nil, err
	}
	executor := adapters.NewSecureExecutor(
		[]string{cfg.AuditTool, cfg.PythonBin, cfg.TestRunner},
		trail,
		cfg.WorkDir,
	)
	service := Service{
		Config:   cfg,
		Executor: executor,
		Audit:    trail,
		Manifest: adapters.NewFileManifestStore(cfg.ManifestPath),
		Backups:  adapters.NewFileBackupStore(cfg.BackupDir),
		Provider: adapters.NewPipAuditAdapter(executor, cfg.AuditTool, cfg.ScanTimeout),
		Parser:   core.NewReportParser(),
		Assessor: core.NewAssessor(cfg.Criticality, cfg.KnownExploited),
		Clock:    time.Now,
	}
	return service, trail, nil
}
