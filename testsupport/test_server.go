package testsupport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/DaDevFox/task-systems/demand-core/internal/events"
	"github.com/DaDevFox/task-systems/demand-core/internal/grpcapi"
	"github.com/DaDevFox/task-systems/demand-core/internal/httpapi"
	"github.com/DaDevFox/task-systems/demand-core/internal/prediction"
	"github.com/DaDevFox/task-systems/demand-core/internal/repository"
	"github.com/DaDevFox/task-systems/demand-core/internal/service"
)

const bufSize = 1024 * 1024

// DemandCoreTestServer is a fully wired demand-core backed by an in-memory store.
// HTTP is served through Router; gRPC runs over an in-process bufconn listener.
type DemandCoreTestServer struct {
	Router   http.Handler
	Service  *service.ForecastService
	Store    repository.Store
	EventBus *events.EventBus
	Conn     *grpc.ClientConn
	Client   *grpcapi.ForecastServiceClient
	cleanup  func()
}

// StartDemandCoreTestServer wires every layer and registers cleanup on t
func StartDemandCoreTestServer(t *testing.T) (*DemandCoreTestServer, error) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := repository.NewInMemoryRepository(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	modelConfig := prediction.DefaultModelConfig()
	modelConfig.Epochs = 20
	registry := prediction.NewRegistry(modelConfig, store, logger)
	predictor := prediction.NewPredictionService(registry, store, time.Minute, logger)
	eventBus := events.NewEventBus(fmt.Sprintf("demand-test-%d", time.Now().UnixNano()), logger)
	forecastService := service.NewForecastService(store, predictor, eventBus, service.DefaultHorizon, logger)

	router := httpapi.NewRouter(httpapi.NewHandler(forecastService, logger), logger)

	listener := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer()
	grpcapi.RegisterForecastServiceServer(grpcServer, grpcapi.NewForecastServer(forecastService, logger))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(dialCtx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(dialCtx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		grpcServer.Stop()
		store.Close()
		return nil, fmt.Errorf("failed to dial demand server: %w", err)
	}

	handle := &DemandCoreTestServer{
		Router:   router,
		Service:  forecastService,
		Store:    store,
		EventBus: eventBus,
		Conn:     conn,
		Client:   grpcapi.NewForecastServiceClient(conn),
	}

	handle.cleanup = func() {
		conn.Close()
		grpcServer.GracefulStop()
		listener.Close()
		eventBus.Wait()
		store.Close()

		select {
		case srvErr := <-serveErr:
			if srvErr != nil {
				logger.WithError(srvErr).Debug("demand test server stopped with error")
			}
		default:
		}
	}

	t.Cleanup(handle.Shutdown)

	return handle, nil
}

// Shutdown stops the servers and closes the store; later calls do nothing
func (h *DemandCoreTestServer) Shutdown() {
	if h.cleanup == nil {
		return
	}

	h.cleanup()
	h.cleanup = nil
}
