// Package secrets abstracts named secret lookup behind a single Store
// interface so that the token broker and the provisioner never know where
// secret material lives.
//
// Three implementations are provided:
//
//   - SSMStore: AWS SSM Parameter Store. SecureString parameters are
//     decrypted on read and overwritten on rotation.
//   - EnvStore: environment variables for local runs. The path
//     /agentgate/oauth/client_secret resolves from
//     AGENTGATE_OAUTH_CLIENT_SECRET. Read-only.
//   - MemoryStore: in-process map for tests.
//
// Chain composes them: reads try each store in order and take the first hit,
// writes land in the last (durable) store. The default wiring is
// NewChain(NewEnvStore(), ssmStore) so an exported environment variable
// overrides the parameter store without touching it.
//
// Secret values are never logged by any implementation; only parameter names
// appear in debug output.
package secrets
