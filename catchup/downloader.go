package catchup

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/kit/tracing"
	"github.com/influxdata/coreraft/logger"
	otlog "github.com/opentracing/opentracing-go/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Downloader fetches a snapshot and the committed tail that follows it and
// hands both to the installer. Nothing is installed unless a complete and
// consistent download was received.
type Downloader struct {
	log       *zap.Logger
	client    Client
	addresses AddressProvider
	installer Installer
	config    Config
	clock     clock.Clock
	limiter   *rate.Limiter
	metrics   *downloaderMetrics
}

// NewDownloader returns a downloader for myself.
func NewDownloader(
	log *zap.Logger,
	myself coreraft.MemberID,
	client Client,
	addresses AddressProvider,
	installer Installer,
	clk clock.Clock,
	c Config,
) *Downloader {
	return &Downloader{
		log:       log.With(logger.Member(myself)),
		client:    client,
		addresses: addresses,
		installer: installer,
		config:    c,
		clock:     clk,
		limiter:   rate.NewLimiter(rate.Every(time.Duration(c.RetryInterval)), 1),
		metrics:   newDownloaderMetrics(prometheus.Labels{"member": myself.String()}),
	}
}

// Download tries up to MaxAttempts peers, alternating between the primary
// and the secondary address. It returns an ECancelled error if ctx is
// cancelled and an EUnavailable error carrying every attempt's failure if
// no attempt succeeded.
func (d *Downloader) Download(ctx context.Context) (err error) {
	span, ctx := tracing.StartSpanFromContext(ctx)
	defer span.Finish()
	defer func() { _ = tracing.LogError(span, err) }()

	log, ctx, done := logger.NewOperation(ctx, d.log, "Downloading snapshot", "catchup_download")
	defer done()

	var errs error
	for attempt := 0; attempt < d.config.MaxAttempts; attempt++ {
		if err := d.wait(ctx); err != nil {
			return errCancelled(err)
		}

		pick := d.addresses.Primary
		if attempt%2 == 1 {
			pick = d.addresses.Secondary
		}
		from, err := pick()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		d.metrics.attempts.Inc()
		span.LogFields(otlog.Int("attempt", attempt), otlog.String("upstream", from.String()))

		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(d.config.Timeout))
		err = d.downloadFrom(attemptCtx, from)
		cancel()
		if err == nil {
			d.metrics.succeeded.Inc()
			return nil
		}
		if ctx.Err() != nil {
			return errCancelled(ctx.Err())
		}

		d.metrics.failed.Inc()
		log.Warn("Snapshot download attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Stringer("upstream", from),
			zap.Error(err))
		errs = multierr.Append(errs, err)
	}

	return &errors.Error{
		Code: errors.EUnavailable,
		Op:   "catchup.Download",
		Msg:  "snapshot download failed",
		Err:  errs,
	}
}

// wait blocks until the limiter allows another attempt.
func (d *Downloader) wait(ctx context.Context) error {
	delay := d.limiter.ReserveN(d.clock.Now(), 1).DelayFrom(d.clock.Now())
	if delay <= 0 {
		return ctx.Err()
	}
	t := d.clock.Timer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Downloader) downloadFrom(ctx context.Context, from coreraft.MemberID) error {
	snap, err := d.client.CoreSnapshot(ctx, from)
	if err != nil {
		return err
	}
	if snap == nil {
		return validate(nil, nil)
	}
	tail, err := d.client.PullEntries(ctx, from, snap.Raft.PrevIndex+1)
	if err != nil {
		return err
	}
	if err := validate(snap, tail); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := d.installer.Install(ctx, snap, tail); err != nil {
		return err
	}
	logger.FromContext(ctx, d.log).Info("Snapshot installed",
		zap.Stringer("upstream", from),
		logger.Index(snap.Raft.PrevIndex),
		zap.Int("tail_entries", len(tail)),
		zap.String("data_size", humanize.Bytes(uint64(len(snap.Data)))))
	return nil
}

func errCancelled(err error) error {
	return &errors.Error{
		Code: errors.ECancelled,
		Op:   "catchup.Download",
		Msg:  "snapshot download cancelled",
		Err:  err,
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (d *Downloader) PrometheusCollectors() []prometheus.Collector {
	return d.metrics.PrometheusCollectors()
}
