// Package phases wires the processing packages into the pipeline's phase
// contract. Each phase validates its inputs, drives one processor package,
// and writes its declared artifacts; skip decisions and manifest commits
// belong to the runner.
package phases

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dubflow/dubflow/pkg/media"
	"github.com/dubflow/dubflow/pkg/pipeline"
	"github.com/dubflow/dubflow/pkg/sep"
)

// Phase names in execution order.
const (
	NameDemux = "demux"
	NameSep   = "sep"
	NameASR   = "asr"
	NameSub   = "sub"
	NameMT    = "mt"
	NameAlign = "align"
	NameTTS   = "tts"
	NameMix   = "mix"
	NameBurn  = "burn"
)

// All returns the pipeline phases in execution order.
func All(log *slog.Logger) []pipeline.Phase {
	if log == nil {
		log = slog.Default()
	}
	ff := media.New(log)
	return []pipeline.Phase{
		&Demux{Media: ff, Log: log},
		&Sep{Separator: sep.New(log), Log: log},
		&ASR{Log: log},
		&Sub{Media: ff, Log: log},
		&MT{Log: log},
		&Align{Log: log},
		&TTS{Media: ff, Log: log},
		&Mix{Media: ff, Log: log},
		&Burn{Media: ff, Log: log},
	}
}

// inputPath resolves a required artifact to its absolute path.
func inputPath(rc *pipeline.RunContext, inputs map[string]pipeline.Artifact, key string) (string, error) {
	a, ok := inputs[key]
	if !ok {
		return "", fmt.Errorf("missing input artifact %q", key)
	}
	return filepath.Join(rc.Workspace, a.Relpath), nil
}

// doubaoCreds reads the speech credentials from the environment. They never
// live in the config file.
func doubaoCreds() (appID, accessKey string, err error) {
	appID = os.Getenv("DOUBAO_APPID")
	accessKey = os.Getenv("DOUBAO_ACCESS_TOKEN")
	if appID == "" || accessKey == "" {
		return "", "", fmt.Errorf("DOUBAO_APPID and DOUBAO_ACCESS_TOKEN must be set")
	}
	return appID, accessKey, nil
}

// splitList splits a comma-separated config value, dropping empties.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
