package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hrygo/chatturn/internal/settings"
	chaterrors "github.com/hrygo/chatturn/server/internal/errors"
)

// SelectModel resolves the completion model for a turn.
//
// In APIM mode the configured deployments are a comma separated list: a requested
// model must be in it, a single entry is the default, and several entries with none
// requested is an error. Otherwise the first selected model is used unless the
// request names one.
func SelectModel(s *settings.Settings, requested string) (string, error) {
	model, err := selectModel(s, strings.TrimSpace(requested))
	if err != nil {
		return "", chaterrors.Configuration("Failed to initialize AI model: " + err.Error())
	}
	return model, nil
}

func selectModel(s *settings.Settings, requested string) (string, error) {
	if s.EnableGPTAPIM {
		raw := s.APIMGPTDeployment
		if raw == "" {
			return "", errors.New("APIM GPT deployment name not configured.")
		}
		var deployments []string
		for _, d := range strings.Split(raw, ",") {
			if d = strings.TrimSpace(d); d != "" {
				deployments = append(deployments, d)
			}
		}
		switch {
		case len(deployments) == 0:
			return "", errors.New("No valid APIM GPT deployment names found.")
		case requested != "":
			for _, d := range deployments {
				if d == requested {
					return requested, nil
				}
			}
			return "", fmt.Errorf("Requested model '%s' is not configured for APIM.", requested)
		case len(deployments) == 1:
			return deployments[0], nil
		default:
			return "", errors.New("Multiple APIM GPT deployments configured; please include 'model_deployment' in your request.")
		}
	}

	configured := s.GPTModel.First()
	if configured == "" {
		return "", errors.New("No GPT model selected or configured.")
	}
	if requested != "" {
		return requested, nil
	}
	return configured, nil
}

// SelectImageModel returns the image deployment, or "" when none is configured.
func SelectImageModel(s *settings.Settings) string {
	if s.EnableImageGenAPIM {
		return s.APIMImageGenDeployment
	}
	return s.ImageGenModel.First()
}
