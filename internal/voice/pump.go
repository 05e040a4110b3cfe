package voice

import (
	"errors"
	"fmt"
	"io"
	"time"

	"voicepad/internal/ports"
)

func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	onErr func(error),
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				onErr(fmt.Errorf("failed to stream audio: %w", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				onErr(fmt.Errorf("audio capture error: %w", err))
			}
			return
		}
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
