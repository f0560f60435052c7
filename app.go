package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/auth"
	"github.com/larscolombia/kapa/internal/config"
	"github.com/larscolombia/kapa/internal/db"
	"github.com/larscolombia/kapa/internal/handler"
	"github.com/larscolombia/kapa/internal/logging"
	"github.com/larscolombia/kapa/internal/mail"
	"github.com/larscolombia/kapa/internal/realtime"
	"github.com/larscolombia/kapa/internal/report"
	"github.com/larscolombia/kapa/internal/repository"
	"github.com/larscolombia/kapa/internal/router"
	"github.com/larscolombia/kapa/internal/service"
	"github.com/larscolombia/kapa/internal/storage"
)

// app holds the wired dependency graph shared by the subcommands.
type app struct {
	cfg *config.Config
	db  *sqlx.DB

	repos struct {
		users         *repository.UserRepo
		access        *repository.AccessRepo
		clients       *repository.ClientRepo
		projects      *repository.ProjectRepo
		contractors   *repository.ContractorRepo
		employees     *repository.EmployeeRepo
		criteria      *repository.CriterionRepo
		documents     *repository.DocumentRepo
		ilv           *repository.IlvRepo
		forms         *repository.FormRepo
		submissions   *repository.SubmissionRepo
		files         *repository.FileRepo
		maestros      *repository.MaestroRepo
		notifications *repository.NotificationRepo
		dashboard     *repository.DashboardRepo
	}

	hub *realtime.Hub

	auth        *service.AuthService
	access      *service.AccessService
	notify      *service.NotificationService
	compliance  *service.ComplianceService
	org         *service.OrgService
	ilv         *service.IlvService
	forms       *service.FormService
	submissions *service.SubmissionService
	search      *service.SearchService
	files       *service.FileService
	maestros    *service.MaestroService
	dashboard   *service.DashboardService
}

// setup loads config, configures logging and opens the database.
func setup(ctx context.Context, envFile string) (*config.Config, *sqlx.DB, error) {
	var files []string
	if envFile != "" {
		files = []string{envFile}
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.GELFAddr); err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL, db.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, conn, nil
}

func blobStore(ctx context.Context, cfg *config.Config) (service.BlobStore, error) {
	if cfg.S3Bucket == "" {
		logrus.Warn("S3_BUCKET not set, blobs are kept in memory")
		return storage.NewMemoryStore(), nil
	}
	s3, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	logrus.WithField("bucket", cfg.S3Bucket).Info("blob storage: s3")
	return s3, nil
}

func newApp(ctx context.Context, cfg *config.Config, conn *sqlx.DB) (*app, error) {
	a := &app{cfg: cfg, db: conn, hub: realtime.NewHub()}

	r := &a.repos
	r.users = repository.NewUserRepo(conn)
	r.access = repository.NewAccessRepo(conn)
	r.clients = repository.NewClientRepo(conn)
	r.projects = repository.NewProjectRepo(conn)
	r.contractors = repository.NewContractorRepo(conn)
	r.employees = repository.NewEmployeeRepo(conn)
	r.criteria = repository.NewCriterionRepo(conn)
	r.documents = repository.NewDocumentRepo(conn)
	r.ilv = repository.NewIlvRepo(conn)
	r.forms = repository.NewFormRepo(conn)
	r.submissions = repository.NewSubmissionRepo(conn)
	r.files = repository.NewFileRepo(conn)
	r.maestros = repository.NewMaestroRepo(conn)
	r.notifications = repository.NewNotificationRepo(conn)
	r.dashboard = repository.NewDashboardRepo(conn)

	blobs, err := blobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	mailer := mail.NewSender(mail.Config{
		Enabled:  cfg.MailEnabled,
		From:     cfg.MailFrom,
		SMTPHost: cfg.MailSMTPHost,
		SMTPPort: cfg.MailSMTPPort,
		User:     cfg.MailSMTPUser,
		Password: cfg.MailSMTPPass,
	})

	a.auth = service.NewAuthService(r.users, cfg.JWTSecret, cfg.JWTTTL)
	a.access = service.NewAccessService(r.users, r.access)
	a.notify = service.NewNotificationService(r.notifications, mailer)
	a.compliance = service.NewComplianceService(r.criteria, r.documents, r.contractors, r.employees, r.projects, blobs, a.notify)
	a.org = service.NewOrgService(r.clients, r.projects, r.contractors, r.employees, a.compliance)
	a.ilv = service.NewIlvService(service.IlvDeps{
		Reports:     r.ilv,
		Projects:    r.projects,
		Maestros:    r.maestros,
		Users:       r.users,
		Submissions: r.submissions,
		Blobs:       blobs,
		Signer:      auth.NewCloseSigner(cfg.CloseSecret),
		Notify:      a.notify,
		Events:      a.hub,
		Renderer:    report.NewRenderer(cfg.ReportFontPath),
		TokenTTL:    cfg.CloseTokenTTL,
		BaseURL:     cfg.PublicBaseURL,
	})
	a.forms = service.NewFormService(r.forms, r.submissions)
	a.submissions = service.NewSubmissionService(r.submissions, a.forms, a.ilv, cfg.DraftTTL, nil)
	a.search = service.NewSearchService(a.submissions)
	a.files = service.NewFileService(r.files, r.projects, blobs)
	a.maestros = service.NewMaestroService(r.maestros)
	a.dashboard = service.NewDashboardService(r.dashboard, a.compliance)
	return a, nil
}

func (a *app) routes() router.Config {
	return router.Config{
		JWTSecret:      a.cfg.JWTSecret,
		Origins:        a.cfg.AllowedOrigins(),
		Permissions:    a.access,
		ProjectVisible: a.org.ProjectVisible,
		Hub:            a.hub,
		Ping:           a.db.PingContext,
	}
}

func (a *app) handlers() router.Handlers {
	return router.Handlers{
		Auth:       handler.NewAuthHandler(a.auth),
		Admin:      handler.NewAdminHandler(a.access, a.notify),
		Org:        handler.NewOrgHandler(a.org),
		Compliance: handler.NewComplianceHandler(a.compliance),
		Ilv:        handler.NewIlvHandler(a.ilv),
		Forms:      handler.NewFormHandler(a.forms),
		Subs:       handler.NewSubmissionHandler(a.submissions, a.search),
		Files:      handler.NewFileHandler(a.files),
		Maestros:   handler.NewMaestroHandler(a.maestros),
		Dashboard:  handler.NewDashboardHandler(a.dashboard),
	}
}
