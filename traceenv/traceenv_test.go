package traceenv_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/traceenv"
)

var _ = Describe("Interner", func() {
	It("returns the same pointer for the same string", func() {
		in := traceenv.NewInterner()
		a := in.Intern("__sys_recvmsg")
		b := in.Intern("__sys_recvmsg")
		Expect(a).To(BeIdenticalTo(b))
		Expect(in.Len()).To(Equal(1))
	})
})

var _ = Describe("Classifiers", func() {
	It("recognizes a driver_rx HostCall only when its interned func is in the set", func() {
		in := traceenv.NewInterner()
		c := traceenv.NewClassifiers()
		c.AddDriverRx(in.Intern("netif_rx"))

		rxFn := in.Intern("netif_rx")
		e := events.Event{Kind: events.KindHostCall, Payload: events.HostCall{Func: rxFn}}
		Expect(c.IsDriverRx(e)).To(BeTrue())

		otherFn := in.Intern("unrelated")
		other := events.Event{Kind: events.KindHostCall, Payload: events.HostCall{Func: otherFn}}
		Expect(c.IsDriverRx(other)).To(BeFalse())
	})
})

var _ = Describe("SymbolTables", func() {
	It("resolves an address to the covering symbol, respecting base offset", func() {
		tabs := traceenv.NewSymbolTables()
		st := traceenv.NewSymbolTable("kernel", "/boot/vmlinux", 0x1000, traceenv.FilterAll, nil)
		st.AddSymbol(0x10, "sys_call_entry")
		st.AddSymbol(0x50, "sys_call_exit")
		st.Finalize()
		tabs.Add(st)

		fn, comp := tabs.Resolve(0x1000 + 0x20)
		Expect(fn).NotTo(BeNil())
		Expect(*fn).To(Equal("sys_call_entry"))
		Expect(*comp).To(Equal("kernel"))
	})

	It("returns (nil, nil) for an address no table covers", func() {
		tabs := traceenv.NewSymbolTables()
		fn, comp := tabs.Resolve(0xdeadbeef)
		Expect(fn).To(BeNil())
		Expect(comp).To(BeNil())
	})

	It("restricts a whitelist table to its listed symbols", func() {
		tabs := traceenv.NewSymbolTables()
		st := traceenv.NewSymbolTable("nic_fw", "/fw.elf", 0, traceenv.FilterWhitelist, []string{"allowed_fn"})
		st.AddSymbol(0x0, "allowed_fn")
		st.AddSymbol(0x100, "blocked_fn")
		st.Finalize()
		tabs.Add(st)

		fn, _ := tabs.Resolve(0x0)
		Expect(fn).NotTo(BeNil())
		fn, _ = tabs.Resolve(0x100)
		Expect(fn).To(BeNil())
	})
})

var _ = Describe("Env", func() {
	It("initializes classifiers and symbol tables from config", func() {
		var env traceenv.Env
		cfg := &traceenv.Config{
			Classifiers: traceenv.ClassifierConfig{DriverTx: []string{"netif_start_xmit"}},
			SymbolTables: []traceenv.SymbolTableConfig{
				{Identifier: "kernel", BaseOffset: 0, FilterKind: "All", Symbols: []traceenv.SymbolEntryConfig{{Addr: 0, Name: "entry"}}},
			},
		}
		Expect(env.Init(cfg)).To(Succeed())
		Expect(env.RunID()).NotTo(BeEmpty())

		fn := env.Intern("netif_start_xmit")
		e := events.Event{Kind: events.KindHostCall, Payload: events.HostCall{Func: fn}}
		Expect(env.Classifiers().IsDriverTx(e)).To(BeTrue())

		name, comp := env.Symbols().Resolve(0)
		Expect(name).NotTo(BeNil())
		Expect(*comp).To(Equal("kernel"))
	})
})
