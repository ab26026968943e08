package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"legalmatch-backend/config"
	"legalmatch-backend/logger"
	"legalmatch-backend/models"
	"legalmatch-backend/repository"
	"legalmatch-backend/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

var (
	cfg  *config.Config
	logr *logrus.Logger

	seedBatchSize int
	userEmail     string
	userPassword  string
	userName      string
	userRole      string

	rootCmd = &cobra.Command{
		Use:   "legalctl",
		Short: "Administer the legalmatch database",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv()
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			logr, err = logger.New(cfg.LogLevel, cfg.LogFile)
			return err
		},
		SilenceUsage: true,
	}

	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Create or update the Postgres schema",
		RunE:  runSchema,
	}

	seedCmd = &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Load articles, lawyers and FAQs from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeed,
	}

	createUserCmd = &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account with a bcrypt hashed password",
		RunE:  runCreateUser,
	}
)

func init() {
	seedCmd.Flags().IntVar(&seedBatchSize, "batch-size", service.DefaultBatchSize, "articles appended per batch")

	createUserCmd.Flags().StringVar(&userEmail, "email", "", "email address (required)")
	createUserCmd.Flags().StringVar(&userPassword, "password", "", "password, at least 8 characters (required)")
	createUserCmd.Flags().StringVar(&userName, "name", "", "display name (required)")
	createUserCmd.Flags().StringVar(&userRole, "role", string(models.RoleUser), "user, lawyer or admin")
	_ = createUserCmd.MarkFlagRequired("email")
	_ = createUserCmd.MarkFlagRequired("password")
	_ = createUserCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(schemaCmd, seedCmd, createUserCmd)
}

func connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pool, err := connectPostgres(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}
	logr.Info("Schema is up to date")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	seed, err := parseSeedFile(data)
	if err != nil {
		return err
	}

	pool, err := connectPostgres(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}

	articles, closeArticles, err := openArticleStore(ctx, pool)
	if err != nil {
		return err
	}
	defer closeArticles()

	articleService := service.NewArticleService(
		service.ArticlesWithStore(articles),
		service.ArticlesWithLogger(logr),
		service.ArticlesWithBatchSize(seedBatchSize),
	)
	lawyerService := service.NewLawyerService(
		service.LawyersWithStore(repository.NewLawyerRepository(pool)),
		service.LawyersWithLogger(logr),
	)
	faqService := service.NewFAQService(repository.NewFAQRepository(pool))

	failed := 0
	for _, src := range seed.Sources {
		report, err := articleService.InsertArticles(ctx, src.request())
		if err != nil {
			return fmt.Errorf("%s/%s: %w", src.Type, src.Subclass, err)
		}
		entry := logr.WithFields(logrus.Fields{
			"type":     src.Type,
			"subclass": src.Subclass,
			"inserted": report.InsertedArticles,
			"total":    report.TotalArticles,
		})
		if report.Outcome() != service.BatchComplete {
			failed++
			for _, f := range report.Failed {
				entry.WithFields(logrus.Fields{"batch": f.Batch, "error": f.Error}).Warn("Batch rejected")
			}
			entry.Warn(report.Suggestion)
			continue
		}
		entry.Info("Articles seeded")
	}

	for _, l := range seed.Lawyers {
		lawyer, err := lawyerService.CreateLawyer(ctx, l.input())
		if err != nil {
			return fmt.Errorf("lawyer %s: %w", l.Email, err)
		}
		logr.WithField("lawyer_id", lawyer.ID).Infof("Lawyer %s created", lawyer.Name)
	}

	for _, f := range seed.FAQs {
		if _, err := faqService.Create(ctx, service.CreateFAQRequest{Question: f.Question, Answer: f.Answer, Category: f.Category}); err != nil {
			return fmt.Errorf("faq %q: %w", f.Question, err)
		}
	}
	if len(seed.FAQs) > 0 {
		logr.Infof("%d FAQs created", len(seed.FAQs))
	}

	if failed > 0 {
		return fmt.Errorf("%d article sources were not fully inserted", failed)
	}
	return nil
}

// openArticleStore opens the article backend selected by ARTICLE_STORE
func openArticleStore(ctx context.Context, pool *pgxpool.Pool) (service.ArticleStore, func(), error) {
	if cfg.ArticleStore != config.ArticleStoreMongo {
		return repository.NewArticleRepository(pool), func() {}, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	disconnect := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}

	store := repository.NewMongoArticleRepository(client.Database(cfg.MongoDatabase))
	if err := store.EnsureIndexes(ctx); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, disconnect, nil
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pool, err := connectPostgres(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := service.NewUserService(
		service.UsersWithStore(repository.NewUserRepository(pool)),
		service.UsersWithBcryptCost(bcrypt.DefaultCost),
	)
	user, err := users.CreateUser(ctx, service.CreateUserRequest{
		Email:    userEmail,
		Password: userPassword,
		Name:     userName,
		Role:     models.UserRole(userRole),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (ID: %s)\n", user.Role, user.Email, user.ID)
	return nil
}
