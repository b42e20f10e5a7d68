package contracts

// HostAction enumerates host-lifecycle authorization actions.
type HostAction string

const (
	HostRename           HostAction = "Host.Rename"
	HostRemove           HostAction = "Host.Remove"
	HostUpdate           HostAction = "Host.Update"
	HostAccept           HostAction = "Host.Accept"
	HostAttach           HostAction = "Host.Attach"
	HostDetachPermission HostAction = "Host.DetachPermission"
)

// SettingsAction enumerates fleet-wide settings actions.
type SettingsAction string

const (
	SettingsDetachGlobal SettingsAction = "Settings.DetachGlobal"
)

// SecretAction enumerates secret-store authorization actions.
type SecretAction string

const (
	SecretCreateOrUpdate SecretAction = "Secret.CreateOrUpdate"
	SecretRename         SecretAction = "Secret.Rename"
	SecretRemove         SecretAction = "Secret.Remove"
	SecretACL            SecretAction = "Secret.ACL"
	SecretListSecrets    SecretAction = "Secret.ListSecrets"
)

// StatusAction enumerates read-only status actions.
type StatusAction string

const (
	StatusListHosts           StatusAction = "Status.ListHosts"
	StatusListHostnameByKey   StatusAction = "Status.ListHostnameByKey"
)

// Action is the closed union of every authorizable operation. It is a
// plain string under the hood so it can key a map directly; the
// typed constants above are the only valid members of each family.
type Action string

func FromHost(a HostAction) Action         { return Action(a) }
func FromSettings(a SettingsAction) Action { return Action(a) }
func FromSecret(a SecretAction) Action     { return Action(a) }
func FromStatus(a StatusAction) Action     { return Action(a) }
