// Package logger provides structured logging for cmdkit using zerolog.
//
// It supports JSON and console output formats, level configuration, and
// component-scoped loggers with structured fields. The command engine logs
// the command line, captured output dumps, and exit codes at debug level;
// child output lines reach the log through process.LogHandler.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//
// # Usage
//
//	log := logger.Get("backup")
//	log.Info("copy finished", logger.Fields("exit_code", 0))
package logger
