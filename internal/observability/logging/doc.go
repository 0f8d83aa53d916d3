// Package logging builds the service's structured loggers on log/slog and
// carries them through request contexts.
//
// Example usage:
//
//	logger := logging.NewLogger()
//	logger.Info("server started", slog.String("addr", ":8080"))
//
//	func handle(ctx context.Context) {
//	    logging.FromContext(ctx).Info("analysis started")
//	}
package logging
