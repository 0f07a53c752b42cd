package tray

import "github.com/godbus/dbus/v5"

// sniAdapter is the exported StatusNotifierItem object. Only protocol methods
// are exported on it.
type sniAdapter struct {
	s *Server
}

// Activate handles primary activation (left click) by delegating to the
// configured activation hook.
func (a *sniAdapter) Activate(x, y int32) *dbus.Error {
	go a.s.activateFunc()()
	return nil
}

func (a *sniAdapter) SecondaryActivate(x, y int32) *dbus.Error {
	return nil
}

func (a *sniAdapter) ContextMenu(x, y int32) *dbus.Error {
	return nil
}

func (a *sniAdapter) Scroll(delta int32, orientation string) *dbus.Error {
	return nil
}

const sniIntrospectXML = `
<node>
  <interface name="org.kde.StatusNotifierItem">
    <property name="Category" type="s" access="read"/>
    <property name="Id" type="s" access="read"/>
    <property name="Title" type="s" access="read"/>
    <property name="Status" type="s" access="read"/>
    <property name="IconName" type="s" access="read"/>
    <property name="IconThemePath" type="s" access="read"/>
    <property name="Menu" type="o" access="read"/>
    <property name="ItemIsMenu" type="b" access="read"/>
    <method name="Activate">
      <arg name="x" type="i" direction="in"/>
      <arg name="y" type="i" direction="in"/>
    </method>
    <method name="SecondaryActivate">
      <arg name="x" type="i" direction="in"/>
      <arg name="y" type="i" direction="in"/>
    </method>
    <method name="ContextMenu">
      <arg name="x" type="i" direction="in"/>
      <arg name="y" type="i" direction="in"/>
    </method>
    <method name="Scroll">
      <arg name="delta" type="i" direction="in"/>
      <arg name="orientation" type="s" direction="in"/>
    </method>
    <signal name="NewTitle"/>
    <signal name="NewIcon"/>
    <signal name="NewStatus">
      <arg name="status" type="s"/>
    </signal>
  </interface>
  <interface name="org.freedesktop.DBus.Properties">
    <method name="Get">
      <arg name="interface" type="s" direction="in"/>
      <arg name="property" type="s" direction="in"/>
      <arg name="value" type="v" direction="out"/>
    </method>
    <method name="GetAll">
      <arg name="interface" type="s" direction="in"/>
      <arg name="properties" type="a{sv}" direction="out"/>
    </method>
  </interface>
</node>`
