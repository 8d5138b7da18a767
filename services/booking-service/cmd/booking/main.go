package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/you/wedding-booking/pkg/config"
	"github.com/you/wedding-booking/pkg/db"
	"github.com/you/wedding-booking/pkg/mq"
	"github.com/you/wedding-booking/pkg/obs"
	httpx "github.com/you/wedding-booking/services/booking-service/internal/http"
	"github.com/you/wedding-booking/services/booking-service/internal/outbox"
	"github.com/you/wedding-booking/services/booking-service/internal/payment"
	"github.com/you/wedding-booking/services/booking-service/internal/repository"
	"github.com/you/wedding-booking/services/booking-service/internal/service"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	cfg := must(config.Load())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer := must(obs.InitTracer(ctx, "booking-service", cfg.OTELEndpoint, cfg.Env))

	// DB
	gdb := must(db.Open(cfg.DatabaseDSN))
	store := repository.NewStore(gdb)
	must(0, store.Migrate())

	gw := must(payment.FromConfig(cfg))
	coord := service.NewCoordinator(store)
	checkout := service.NewCheckoutService(store, coord, gw, cfg.Currency, cfg.ReservationTTL)
	rec := service.NewReconciler(store, gw)

	// Outbox relay (booking.* events)
	if cfg.RabbitURL != "" {
		pub := must(mq.NewPublisher(cfg.RabbitURL, cfg.BookingExchange))
		defer pub.Close()
		go outbox.NewRelay(store, pub, cfg.OutboxBatch, cfg.OutboxInterval).Run(ctx)
		log.Printf("[booking] outbox relay publishing to %s", cfg.BookingExchange)
	} else {
		log.Println("[booking] RABBIT_URL empty, outbox relay disabled")
	}

	// Reservation sweeper
	if cfg.SweepInterval > 0 {
		go sweep(ctx, coord, cfg.SweepInterval, cfg.StaleAfter())
	}

	// gRPC health for the mesh
	lis := must(net.Listen("tcp", cfg.BookingGRPCAddr))
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("booking", healthpb.HealthCheckResponse_SERVING)
	go func() {
		log.Println("[booking] gRPC listening on", cfg.BookingGRPCAddr)
		if err := gs.Serve(lis); err != nil {
			log.Printf("[booking] gRPC stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpx.NewRouter(httpx.Deps{
			Checkout:        checkout,
			Webhooks:        rec,
			Ledger:          store.Ledger,
			Admin:           coord,
			SignatureHeader: gw.SignatureHeader(),
			JWTSecret:       []byte(cfg.JWTSecret),
			StaleAfter:      cfg.StaleAfter(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[booking] HTTP listening on %s (provider=%s)", cfg.HTTPAddr, gw.Provider())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	hs.Shutdown()
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("[booking] http shutdown: %v", err)
	}
	gs.GracefulStop()
	if err := shutdownTracer(sctx); err != nil {
		log.Printf("[booking] tracer shutdown: %v", err)
	}
	log.Println("[booking] stopped")
}

func sweep(ctx context.Context, coord *service.Coordinator, every, staleAfter time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := coord.ExpireStale(ctx, time.Now().UTC().Add(-staleAfter), 100)
			if err != nil {
				log.Printf("[sweeper] released=%d err=%v", n, err)
			} else if n > 0 {
				log.Printf("[sweeper] released %d stale reservations", n)
			}
		}
	}
}
