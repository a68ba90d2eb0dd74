// Package lua runs component behavior scripts on gopher-lua.
//
// A behavior script is a chunk that returns a table of hooks:
//
//	local health = {}
//
//	function health.on_init(self)
//	    self.hp = self.properties.max or 100
//	    self:setup_request("HP", function(self) return self.hp end)
//	end
//
//	function health.on_update(self, dt)
//	    if self.hp <= 0 then self:post("Died", self.entity) end
//	end
//
//	return health
//
// Every hook is optional. on_pre_update and on_update are subscribed to the
// component registry's PreUpdate and Update events on the owner's messenger
// and receive the frame delta in seconds. on_destroy runs when the component
// is destroyed, after which every subscription, request provider and
// listener the script created is removed.
//
// # self
//
// The self table carries type, entity, name and properties, and these
// methods:
//
//	self:subscribe(event, fn)        -- returns a subscription id
//	self:unsubscribe(event [, id])   -- one id, or all of this script's
//	self:post(event, value)
//	self:request(name)               -- value, or nil and an error string
//	self:setup_request(name, fn)
//	self:disconnect_request(name)
//	self:listen(event, fn)           -- returns a listener; fn gets a batch
//	self:log(msg [, level])
//
// # Sandbox
//
// The state opens only the base, table, string and math libraries, removes
// dofile, loadfile and load, restricts require to those libraries and routes
// print to the runtime's logger. Each top-level call runs under a deadline.
package lua
