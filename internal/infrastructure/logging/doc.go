// Package logging provides structured logging using uber/zap.
//
// Production writes sampled JSON lines tagged with the service name. Development writes
// colored console lines at debug level without sampling.
//
// Components receive a *Logger and derive child loggers per concern:
//
//	logger := logging.NewDefault().Named("widget")
//	logger.ForWidget(id).Debug("render scheduled", zap.Duration("delay", d))
//	logger.ForPage(pid).Info("page closed", logging.Request(rid))
//
// Flush at shutdown; it ignores the sync errors terminals return.
//
// Console lines produced by isolated widget documents are not logged here; they go to the
// widget's output panel. Only the surface's own console (outside the forwarder) is logged at
// debug level.
package logging
