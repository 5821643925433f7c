package goPasskey

import "encoding/json"

// ceremonyEnvelope mirrors the browser's PublicKeyCredential JSON shape far
// enough to itemize missing fields before anything cryptographic runs.
// Pointer fields distinguish "absent" from "empty".
type ceremonyEnvelope struct {
	ID       *string `json:"id"`
	Type     *string `json:"type"`
	Response *struct {
		ClientDataJSON    *string `json:"clientDataJSON"`
		AttestationObject *string `json:"attestationObject"`
		AuthenticatorData *string `json:"authenticatorData"`
		Signature         *string `json:"signature"`
	} `json:"response"`
}

func validateAttestationShape(payload []byte) error {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return err
	}

	var missing []string
	if env.ID == nil || *env.ID == "" {
		missing = append(missing, "id")
	}
	if env.Type == nil || *env.Type == "" {
		missing = append(missing, "type")
	}
	if env.Response == nil {
		missing = append(missing, "response")
	} else {
		if env.Response.ClientDataJSON == nil || *env.Response.ClientDataJSON == "" {
			missing = append(missing, "response.clientDataJSON")
		}
		if env.Response.AttestationObject == nil || *env.Response.AttestationObject == "" {
			missing = append(missing, "response.attestationObject")
		}
	}

	if len(missing) > 0 {
		return &MalformedPayloadError{Missing: missing}
	}
	return nil
}

// validateAssertionShape returns the asserted credential identifier on
// success; the repository lookup keys on it before the verifier runs.
func validateAssertionShape(payload []byte) (string, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return "", err
	}

	var missing []string
	if env.ID == nil || *env.ID == "" {
		missing = append(missing, "id")
	}
	if env.Type == nil || *env.Type == "" {
		missing = append(missing, "type")
	}
	if env.Response == nil {
		missing = append(missing, "response")
	} else {
		if env.Response.ClientDataJSON == nil || *env.Response.ClientDataJSON == "" {
			missing = append(missing, "response.clientDataJSON")
		}
		if env.Response.AuthenticatorData == nil || *env.Response.AuthenticatorData == "" {
			missing = append(missing, "response.authenticatorData")
		}
		if env.Response.Signature == nil || *env.Response.Signature == "" {
			missing = append(missing, "response.signature")
		}
	}

	if len(missing) > 0 {
		return "", &MalformedPayloadError{Missing: missing}
	}
	return *env.ID, nil
}

func decodeEnvelope(payload []byte) (ceremonyEnvelope, error) {
	var env ceremonyEnvelope
	if len(payload) == 0 {
		return env, &MalformedPayloadError{Missing: []string{"payload"}}
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, &MalformedPayloadError{Missing: []string{"payload"}}
	}
	return env, nil
}
