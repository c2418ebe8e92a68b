// Package process runs short-lived child processes such as an audio player.
//
// Features:
//   - One run at a time per Runner
//   - Each run gets its own process group so players that fork are
//     signalled as a whole
//   - Graceful stop (SIGTERM, then SIGKILL after a timeout)
//   - Non-zero exits and stderr output are logged
//
// Example usage:
//
//	r := process.NewRunner(process.Config{
//	    Name:            "player",
//	    Binary:          "aplay",
//	    Args:            []string{"-q"},
//	    GracefulTimeout: 2 * time.Second,
//	})
//
//	if err := r.Start(ctx, "/srv/sounds/help1.wav"); err != nil {
//	    return err
//	}
//	err := r.Wait(ctx)
package process
