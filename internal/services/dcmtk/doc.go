// Package dcmtk wraps the DCMTK command line tools the relay depends on.
//
// Client shells out to storescu for C-STORE sends and echoscu for C-ECHO
// pings. Receiver manages a long-running storescp process that accepts
// incoming associations and writes files into a listener inbox. Command
// execution sits behind the Executor and Launcher seams so tests can run
// without DCMTK installed.
package dcmtk
