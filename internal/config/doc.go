// Package config provides configuration management for agentgate.
//
// Configuration is read from a single YAML file. The loader searches, in
// order: the path given with --config, ./agentgate.yaml in the working
// directory, and ~/.config/agentgate/config.yaml. When no file exists the
// built-in defaults are used, which is enough to run commands that take all
// their inputs from flags.
//
// # Configuration Structure
//
// The file describes one deployment end to end:
//
//	region: us-west-2                  # Control plane region (or $AGENTGATE_REGION / $AWS_REGION)
//
//	gateway:
//	  name: agent-tools                # Gateway resource name
//	  roleArn: arn:aws:iam::123456789012:role/agentgate
//
//	inbound:
//	  issuer: https://login.example.com
//	  audiences: [mcp-gateway]
//	  leeway: 30s
//
//	credentialProvider:
//	  name: auth0-backend
//	  issuer: https://issuer.example.com
//	  audience: https://tools.example.com
//	  scopes: [tools.read, tools.write]
//	  clientIdRef: /agentgate/oauth/client_id
//	  clientSecretRef: /agentgate/oauth/client_secret
//
//	targets:
//	  - name: internal-tools
//	    endpoint: https://tools.internal.example.com/mcp
//
//	serve:
//	  host: 127.0.0.1
//	  port: 8080
//
// Durations are written as strings ("30s", "5m") and parsed with
// time.ParseDuration; accessor methods such as LeewayDuration return the
// parsed value with the default applied.
//
// # Secrets
//
// The configuration never contains client credentials. It carries secret
// store references (clientIdRef, clientSecretRef); the secrets package
// resolves them at runtime according to secrets.source.
//
// # Validation
//
// Config.Validate collects every problem in the file into a
// ValidationErrors value instead of stopping at the first, so a single run
// reports everything the operator has to fix.
package config
