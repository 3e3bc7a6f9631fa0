package cli

import (
	"fmt"

	"github.com/turtacn/keyshape/internal/application/alignment"
	"github.com/turtacn/keyshape/internal/config"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/client"
)

// initService returns a local shape service, or the API client's shape
// endpoints when --server is set. Both satisfy alignment.Service. The client
// is nil in local mode.
func initService(cfg *config.Config, opts *RootOptions, logger logging.Logger) (alignment.Service, *client.Client, error) {
	if opts.Server == "" {
		alignOpts, err := alignment.OptionsFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}
		return alignment.NewService(alignment.NewAligner(alignOpts, logger), logger), nil, nil
	}

	c, err := client.NewClient(opts.Server,
		client.WithAPIKey(opts.APIKey),
		client.WithUserAgent(fmt.Sprintf("keyshape-cli/%s", Version)),
		client.WithLogger(sdkLogger{logger.Named("client")}),
	)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("using remote shape service", logging.String("server", opts.Server))
	return c.Shapes(), c, nil
}

// sdkLogger adapts the structured logger to the SDK's printf interface.
type sdkLogger struct {
	logging.Logger
}

func (l sdkLogger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }
func (l sdkLogger) Infof(format string, args ...interface{})  { l.Info(fmt.Sprintf(format, args...)) }
func (l sdkLogger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }
