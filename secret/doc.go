// Package secret resolves credentials in configuration values.
//
// ExpandEnvStrict expands ${VAR} references and fails when one is unset, so
// a missing API key stops startup instead of surfacing later as an auth
// failure. Values of the form "secretref:<provider>:<ref>" are read from a
// Provider: "env" resolves a variable name and "file" reads a file under a
// directory.
//
//	r := secret.NewResolver(secret.WithProvider(secret.NewFileProvider("/run/secrets")))
//	key, err := r.Resolve(ctx, "secretref:file:openai_api_key")
package secret
