package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	api "mailcal/cmd/api"
	eventdomain "mailcal/internal/event/domain"
	eventusecase "mailcal/internal/event/usecase"
	"mailcal/internal/notification"
	"mailcal/internal/poller"
	"mailcal/internal/processed/repository"
	"mailcal/pkg/ai"
	"mailcal/pkg/fcm"
	"mailcal/pkg/gcal"
	"mailcal/pkg/gmail"
	"mailcal/pkg/googleauth"
	"mailcal/pkg/imap"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Mailbox providers accepted in MAILBOX_PROVIDER
const (
	MailboxGmail = "gmail"
	MailboxIMAP  = "imap"
)

type validatingMailbox interface {
	poller.Mailbox
	ValidateToken(ctx context.Context) error
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the poll loop (default command)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runPoller(ctx)
	},
}

func runPoller(ctx context.Context) error {
	store, err := repository.NewProcessedRepository(ctx, cfg)
	if err != nil {
		return startupError(err, "failed to open processed store")
	}
	defer store.Close()

	oauthCfg, err := googleauth.LoadConfig(cfg.GoogleCredentialsFile)
	if err != nil {
		return startupError(err, "failed to load Google credentials")
	}
	httpClient, err := googleauth.NewHTTPClient(ctx, oauthCfg, cfg.GoogleTokenFile)
	if err != nil {
		return startupError(err, "failed to authorize Google client")
	}

	calendar, err := gcal.NewService(ctx, httpClient, cfg.CalendarID)
	if err != nil {
		return startupError(err, "failed to create calendar service")
	}

	var (
		mailbox  validatingMailbox
		gmailSvc *gmail.Service
	)
	switch cfg.MailboxProvider {
	case MailboxGmail, "":
		gmailSvc, err = gmail.NewService(ctx, httpClient)
		if err != nil {
			return startupError(err, "failed to create Gmail service")
		}
		mailbox = gmailSvc
	case MailboxIMAP:
		mailbox = imap.NewService(imap.Config{
			Addr:     cfg.IMAPAddr,
			Username: cfg.IMAPUsername,
			Password: cfg.IMAPPassword,
			Mailbox:  cfg.IMAPMailbox,
			TLS:      cfg.IMAPTLS,
		})
	default:
		return fmt.Errorf("unknown MAILBOX_PROVIDER %q (want gmail or imap)", cfg.MailboxProvider)
	}
	if err := mailbox.ValidateToken(ctx); err != nil {
		return startupError(err, "mailbox credentials rejected")
	}

	generator, err := ai.NewGenerator(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.ModelName,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		return startupError(err, "failed to create language model client")
	}

	normalizer := eventusecase.NewNormalizer(cfg.Location)
	p := poller.NewPoller(
		mailbox,
		eventusecase.NewExtractor(generator, cfg.AIProvider),
		eventusecase.NewMaterializer(normalizer),
		calendar,
		store,
		cfg.PollInterval,
	)
	if err := p.Load(ctx); err != nil {
		return startupError(err, "failed to load processed set")
	}

	// Push notifications are optional
	if cfg.FirebaseCredentials != "" && len(cfg.FCMDeviceTokens) > 0 {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials, cfg.FCMDeviceTokens)
		if err != nil {
			log.Warn().Err(err).Msg("cli: FCM disabled")
		} else {
			p.WithNotifier(fcmClient)
		}
	}

	if cfg.GoogleProjectID != "" && gmailSvc != nil {
		startNotifications(ctx, p, gmailSvc)
	} else {
		log.Debug().Msg("cli: Pub/Sub trigger disabled")
	}

	if cfg.StatusAddr != "" {
		go func() {
			if err := api.NewHandler(p).Start(ctx, cfg.StatusAddr); err != nil {
				log.Error().Err(err).Msg("cli: status server failed")
			}
		}()
	}

	log.Info().
		Str("mailbox", cfg.MailboxProvider).
		Str("model", cfg.AIProvider).
		Str("store", cfg.ProcessedStore).
		Str("time_zone", cfg.TimeZone).
		Msg("cli: mailcal running")
	return p.Run(ctx)
}

func startNotifications(ctx context.Context, p *poller.Poller, gmailSvc *gmail.Service) {
	// Accept both the short topic name and the full resource name
	topicName := cfg.GooglePubSubTopic
	if parts := strings.Split(topicName, "/"); len(parts) > 1 {
		topicName = parts[len(parts)-1]
	}
	if topicName == "" {
		topicName = "gmail-updates"
	}

	notifService, err := notification.NewService(ctx, cfg.GoogleProjectID, topicName, p, gmailSvc, "")
	if err != nil {
		log.Warn().Err(err).Msg("cli: Pub/Sub trigger disabled")
		return
	}
	go func() {
		defer notifService.Close()
		if err := notifService.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("cli: Pub/Sub trigger stopped")
		}
	}()
}

// startupError exits for credential and store failures and wraps everything else
func startupError(err error, msg string) error {
	if eventdomain.IsFatal(err) {
		log.Fatal().Err(err).Msg(msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
