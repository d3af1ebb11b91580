package monitor

import (
	"github.com/godbus/dbus/v5"
)

// DBusClient is the subset of the session bus the monitor needs
//
//go:generate mockgen -destination=mocks/dbus_client_mock.go -package=mocks github.com/genricoloni/nowplaying/internal/monitor DBusClient
type DBusClient interface {
	Close() error

	AddMatchSignal(options ...dbus.MatchOption) error

	// Signal registers ch for incoming signals. The channel is closed when
	// the connection is lost.
	Signal(ch chan<- *dbus.Signal)

	ListNames() ([]string, error)

	// GetNameOwner resolves a well-known name to its unique bus name
	GetNameOwner(name string) (string, error)

	// GetProperty reads prop from the object at path owned by player
	GetProperty(player, path, prop string) (dbus.Variant, error)
}

// sessionClient wraps a private session bus connection
type sessionClient struct {
	conn *dbus.Conn
}

// dialSessionBus opens a private connection so closing it never affects
// other users of the shared session bus
func dialSessionBus() (DBusClient, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &sessionClient{conn: conn}, nil
}

func (c *sessionClient) Close() error {
	return c.conn.Close()
}

func (c *sessionClient) AddMatchSignal(options ...dbus.MatchOption) error {
	return c.conn.AddMatchSignal(options...)
}

func (c *sessionClient) Signal(ch chan<- *dbus.Signal) {
	c.conn.Signal(ch)
}

func (c *sessionClient) ListNames() ([]string, error) {
	var names []string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

func (c *sessionClient) GetNameOwner(name string) (string, error) {
	var owner string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner)
	return owner, err
}

func (c *sessionClient) GetProperty(player, path, prop string) (dbus.Variant, error) {
	return c.conn.Object(player, dbus.ObjectPath(path)).GetProperty(prop)
}
