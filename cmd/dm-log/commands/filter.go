package commands

import (
	"fmt"
	"io"

	"github.com/iotdm/iotdm-go/pkg/log"
)

// RunFilter copies the events matching flags into a new capture file and
// returns how many were written.
func RunFilter(path, output string, flags FilterFlags) (int, error) {
	filter, err := flags.Build()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
	return count, nil
}
