// Package audio plays alert sounds through an external player command.
//
// PlayerSink runs one player process at a time (aplay, paplay, afplay,
// mpg123 ...) with the sound file as its last argument. FileChecker
// resolves configured sound names against the sounds directory and
// confirms the file exists before playback is attempted.
package audio
