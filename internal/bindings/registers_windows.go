//go:build windows

package bindings

import "fmt"

// RegisterName mirrors WHV_REGISTER_NAME.
type RegisterName uint32

// X64 General Purpose Registers
const (
	RegisterRax    RegisterName = 0x00000000
	RegisterRcx    RegisterName = 0x00000001
	RegisterRdx    RegisterName = 0x00000002
	RegisterRbx    RegisterName = 0x00000003
	RegisterRsp    RegisterName = 0x00000004
	RegisterRbp    RegisterName = 0x00000005
	RegisterRsi    RegisterName = 0x00000006
	RegisterRdi    RegisterName = 0x00000007
	RegisterR8     RegisterName = 0x00000008
	RegisterR9     RegisterName = 0x00000009
	RegisterR10    RegisterName = 0x0000000A
	RegisterR11    RegisterName = 0x0000000B
	RegisterR12    RegisterName = 0x0000000C
	RegisterR13    RegisterName = 0x0000000D
	RegisterR14    RegisterName = 0x0000000E
	RegisterR15    RegisterName = 0x0000000F
	RegisterRip    RegisterName = 0x00000010
	RegisterRflags RegisterName = 0x00000011
)

// X64 Segment Registers
const (
	RegisterEs   RegisterName = 0x00000012
	RegisterCs   RegisterName = 0x00000013
	RegisterSs   RegisterName = 0x00000014
	RegisterDs   RegisterName = 0x00000015
	RegisterFs   RegisterName = 0x00000016
	RegisterGs   RegisterName = 0x00000017
	RegisterLdtr RegisterName = 0x00000018
	RegisterTr   RegisterName = 0x00000019
)

// X64 Table Registers
const (
	RegisterIdtr RegisterName = 0x0000001A
	RegisterGdtr RegisterName = 0x0000001B
)

// X64 Control Registers
const (
	RegisterCr0 RegisterName = 0x0000001C
	RegisterCr2 RegisterName = 0x0000001D
	RegisterCr3 RegisterName = 0x0000001E
	RegisterCr4 RegisterName = 0x0000001F
	RegisterCr8 RegisterName = 0x00000020
)

// X64 Debug Registers
const (
	RegisterDr0 RegisterName = 0x00000021
	RegisterDr1 RegisterName = 0x00000022
	RegisterDr2 RegisterName = 0x00000023
	RegisterDr3 RegisterName = 0x00000024
	RegisterDr6 RegisterName = 0x00000025
	RegisterDr7 RegisterName = 0x00000026
)

// X64 Extended Control Registers
const (
	RegisterXCr0 RegisterName = 0x00000027
)

// X64 Virtual Control Registers
const (
	RegisterVirtualCr0 RegisterName = 0x00000028
	RegisterVirtualCr3 RegisterName = 0x00000029
	RegisterVirtualCr4 RegisterName = 0x0000002A
	RegisterVirtualCr8 RegisterName = 0x0000002B
)

// X64 Floating Point and Vector Registers
const (
	RegisterXmm0             RegisterName = 0x00001000
	RegisterXmm1             RegisterName = 0x00001001
	RegisterXmm2             RegisterName = 0x00001002
	RegisterXmm3             RegisterName = 0x00001003
	RegisterXmm4             RegisterName = 0x00001004
	RegisterXmm5             RegisterName = 0x00001005
	RegisterXmm6             RegisterName = 0x00001006
	RegisterXmm7             RegisterName = 0x00001007
	RegisterXmm8             RegisterName = 0x00001008
	RegisterXmm9             RegisterName = 0x00001009
	RegisterXmm10            RegisterName = 0x0000100A
	RegisterXmm11            RegisterName = 0x0000100B
	RegisterXmm12            RegisterName = 0x0000100C
	RegisterXmm13            RegisterName = 0x0000100D
	RegisterXmm14            RegisterName = 0x0000100E
	RegisterXmm15            RegisterName = 0x0000100F
	RegisterFpMmx0           RegisterName = 0x00001010
	RegisterFpMmx1           RegisterName = 0x00001011
	RegisterFpMmx2           RegisterName = 0x00001012
	RegisterFpMmx3           RegisterName = 0x00001013
	RegisterFpMmx4           RegisterName = 0x00001014
	RegisterFpMmx5           RegisterName = 0x00001015
	RegisterFpMmx6           RegisterName = 0x00001016
	RegisterFpMmx7           RegisterName = 0x00001017
	RegisterFpControlStatus  RegisterName = 0x00001018
	RegisterXmmControlStatus RegisterName = 0x00001019
)

// X64 MSRs
const (
	RegisterTsc                   RegisterName = 0x00002000
	RegisterEfer                  RegisterName = 0x00002001
	RegisterKernelGsBase          RegisterName = 0x00002002
	RegisterApicBase              RegisterName = 0x00002003
	RegisterPat                   RegisterName = 0x00002004
	RegisterSysenterCs            RegisterName = 0x00002005
	RegisterSysenterEip           RegisterName = 0x00002006
	RegisterSysenterEsp           RegisterName = 0x00002007
	RegisterStar                  RegisterName = 0x00002008
	RegisterLstar                 RegisterName = 0x00002009
	RegisterCstar                 RegisterName = 0x0000200A
	RegisterSfmask                RegisterName = 0x0000200B
	RegisterInitialApicID         RegisterName = 0x0000200C
	RegisterMsrMtrrCap            RegisterName = 0x0000200D
	RegisterMsrMtrrDefType        RegisterName = 0x0000200E
	RegisterMsrMtrrPhysBase0      RegisterName = 0x00002010
	RegisterMsrMtrrPhysBase1      RegisterName = 0x00002011
	RegisterMsrMtrrPhysBase2      RegisterName = 0x00002012
	RegisterMsrMtrrPhysBase3      RegisterName = 0x00002013
	RegisterMsrMtrrPhysBase4      RegisterName = 0x00002014
	RegisterMsrMtrrPhysBase5      RegisterName = 0x00002015
	RegisterMsrMtrrPhysBase6      RegisterName = 0x00002016
	RegisterMsrMtrrPhysBase7      RegisterName = 0x00002017
	RegisterMsrMtrrPhysBase8      RegisterName = 0x00002018
	RegisterMsrMtrrPhysBase9      RegisterName = 0x00002019
	RegisterMsrMtrrPhysBaseA      RegisterName = 0x0000201A
	RegisterMsrMtrrPhysBaseB      RegisterName = 0x0000201B
	RegisterMsrMtrrPhysBaseC      RegisterName = 0x0000201C
	RegisterMsrMtrrPhysBaseD      RegisterName = 0x0000201D
	RegisterMsrMtrrPhysBaseE      RegisterName = 0x0000201E
	RegisterMsrMtrrPhysBaseF      RegisterName = 0x0000201F
	RegisterMsrMtrrPhysMask0      RegisterName = 0x00002040
	RegisterMsrMtrrPhysMask1      RegisterName = 0x00002041
	RegisterMsrMtrrPhysMask2      RegisterName = 0x00002042
	RegisterMsrMtrrPhysMask3      RegisterName = 0x00002043
	RegisterMsrMtrrPhysMask4      RegisterName = 0x00002044
	RegisterMsrMtrrPhysMask5      RegisterName = 0x00002045
	RegisterMsrMtrrPhysMask6      RegisterName = 0x00002046
	RegisterMsrMtrrPhysMask7      RegisterName = 0x00002047
	RegisterMsrMtrrPhysMask8      RegisterName = 0x00002048
	RegisterMsrMtrrPhysMask9      RegisterName = 0x00002049
	RegisterMsrMtrrPhysMaskA      RegisterName = 0x0000204A
	RegisterMsrMtrrPhysMaskB      RegisterName = 0x0000204B
	RegisterMsrMtrrPhysMaskC      RegisterName = 0x0000204C
	RegisterMsrMtrrPhysMaskD      RegisterName = 0x0000204D
	RegisterMsrMtrrPhysMaskE      RegisterName = 0x0000204E
	RegisterMsrMtrrPhysMaskF      RegisterName = 0x0000204F
	RegisterMsrMtrrFix64k00000    RegisterName = 0x00002070
	RegisterMsrMtrrFix16k80000    RegisterName = 0x00002071
	RegisterMsrMtrrFix16kA0000    RegisterName = 0x00002072
	RegisterMsrMtrrFix4kC0000     RegisterName = 0x00002073
	RegisterMsrMtrrFix4kC8000     RegisterName = 0x00002074
	RegisterMsrMtrrFix4kD0000     RegisterName = 0x00002075
	RegisterMsrMtrrFix4kD8000     RegisterName = 0x00002076
	RegisterMsrMtrrFix4kE0000     RegisterName = 0x00002077
	RegisterMsrMtrrFix4kE8000     RegisterName = 0x00002078
	RegisterMsrMtrrFix4kF0000     RegisterName = 0x00002079
	RegisterMsrMtrrFix4kF8000     RegisterName = 0x0000207A
	RegisterTscAux                RegisterName = 0x0000207B
	RegisterBndcfgs               RegisterName = 0x0000207C
	RegisterMCount                RegisterName = 0x0000207E
	RegisterACount                RegisterName = 0x0000207F
	RegisterSpecCtrl              RegisterName = 0x00002084
	RegisterPredCmd               RegisterName = 0x00002085
	RegisterTscVirtualOffset      RegisterName = 0x00002087
	RegisterTsxCtrl               RegisterName = 0x00002088
	RegisterXss                   RegisterName = 0x0000208B
	RegisterUCet                  RegisterName = 0x0000208C
	RegisterSCet                  RegisterName = 0x0000208D
	RegisterSsp                   RegisterName = 0x0000208E
	RegisterPl0Ssp                RegisterName = 0x0000208F
	RegisterPl1Ssp                RegisterName = 0x00002090
	RegisterPl2Ssp                RegisterName = 0x00002091
	RegisterPl3Ssp                RegisterName = 0x00002092
	RegisterInterruptSspTableAddr RegisterName = 0x00002093
	RegisterTscDeadline           RegisterName = 0x00002095
	RegisterTscAdjust             RegisterName = 0x00002096
	RegisterUmwaitControl         RegisterName = 0x00002098
	RegisterXfd                   RegisterName = 0x00002099
	RegisterXfdErr                RegisterName = 0x0000209A
)

// X64 Feature Control and Nested Capability MSRs
const (
	RegisterMsrIa32MiscEnable       RegisterName = 0x000020A0
	RegisterIa32FeatureControl      RegisterName = 0x000020A1
	RegisterIa32VmxBasic            RegisterName = 0x000020A2
	RegisterIa32VmxPinbasedCtls     RegisterName = 0x000020A3
	RegisterIa32VmxProcbasedCtls    RegisterName = 0x000020A4
	RegisterIa32VmxExitCtls         RegisterName = 0x000020A5
	RegisterIa32VmxEntryCtls        RegisterName = 0x000020A6
	RegisterIa32VmxMisc             RegisterName = 0x000020A7
	RegisterIa32VmxCr0Fixed0        RegisterName = 0x000020A8
	RegisterIa32VmxCr0Fixed1        RegisterName = 0x000020A9
	RegisterIa32VmxCr4Fixed0        RegisterName = 0x000020AA
	RegisterIa32VmxCr4Fixed1        RegisterName = 0x000020AB
	RegisterIa32VmxVmcsEnum         RegisterName = 0x000020AC
	RegisterIa32VmxProcbasedCtls2   RegisterName = 0x000020AD
	RegisterIa32VmxEptVpidCap       RegisterName = 0x000020AE
	RegisterIa32VmxTruePinbasedCtls RegisterName = 0x000020AF
	RegisterIa32VmxTrueProcbased    RegisterName = 0x000020B0
	RegisterIa32VmxTrueExitCtls     RegisterName = 0x000020B1
	RegisterIa32VmxTrueEntryCtls    RegisterName = 0x000020B2
	RegisterAmdVmHsavePa            RegisterName = 0x000020B3
	RegisterAmdVmCr                 RegisterName = 0x000020B4
)

// X64 APIC State Registers
const (
	RegisterApicId           RegisterName = 0x00003002
	RegisterApicVersion      RegisterName = 0x00003003
	RegisterApicTpr          RegisterName = 0x00003008
	RegisterApicPpr          RegisterName = 0x0000300A
	RegisterApicEoi          RegisterName = 0x0000300B
	RegisterApicLdr          RegisterName = 0x0000300D
	RegisterApicSpurious     RegisterName = 0x0000300F
	RegisterApicIsr0         RegisterName = 0x00003010
	RegisterApicIsr1         RegisterName = 0x00003011
	RegisterApicIsr2         RegisterName = 0x00003012
	RegisterApicIsr3         RegisterName = 0x00003013
	RegisterApicIsr4         RegisterName = 0x00003014
	RegisterApicIsr5         RegisterName = 0x00003015
	RegisterApicIsr6         RegisterName = 0x00003016
	RegisterApicIsr7         RegisterName = 0x00003017
	RegisterApicTmr0         RegisterName = 0x00003018
	RegisterApicTmr1         RegisterName = 0x00003019
	RegisterApicTmr2         RegisterName = 0x0000301A
	RegisterApicTmr3         RegisterName = 0x0000301B
	RegisterApicTmr4         RegisterName = 0x0000301C
	RegisterApicTmr5         RegisterName = 0x0000301D
	RegisterApicTmr6         RegisterName = 0x0000301E
	RegisterApicTmr7         RegisterName = 0x0000301F
	RegisterApicIrr0         RegisterName = 0x00003020
	RegisterApicIrr1         RegisterName = 0x00003021
	RegisterApicIrr2         RegisterName = 0x00003022
	RegisterApicIrr3         RegisterName = 0x00003023
	RegisterApicIrr4         RegisterName = 0x00003024
	RegisterApicIrr5         RegisterName = 0x00003025
	RegisterApicIrr6         RegisterName = 0x00003026
	RegisterApicIrr7         RegisterName = 0x00003027
	RegisterApicEse          RegisterName = 0x00003028
	RegisterApicIcr          RegisterName = 0x00003030
	RegisterApicLvtTimer     RegisterName = 0x00003032
	RegisterApicLvtThermal   RegisterName = 0x00003033
	RegisterApicLvtPerfmon   RegisterName = 0x00003034
	RegisterApicLvtLint0     RegisterName = 0x00003035
	RegisterApicLvtLint1     RegisterName = 0x00003036
	RegisterApicLvtError     RegisterName = 0x00003037
	RegisterApicInitCount    RegisterName = 0x00003038
	RegisterApicCurrentCount RegisterName = 0x00003039
	RegisterApicDivide       RegisterName = 0x0000303E
	RegisterApicSelfIpi      RegisterName = 0x0000303F
)

// Synic Registers
const (
	RegisterSint0    RegisterName = 0x00004000
	RegisterSint1    RegisterName = 0x00004001
	RegisterSint2    RegisterName = 0x00004002
	RegisterSint3    RegisterName = 0x00004003
	RegisterSint4    RegisterName = 0x00004004
	RegisterSint5    RegisterName = 0x00004005
	RegisterSint6    RegisterName = 0x00004006
	RegisterSint7    RegisterName = 0x00004007
	RegisterSint8    RegisterName = 0x00004008
	RegisterSint9    RegisterName = 0x00004009
	RegisterSint10   RegisterName = 0x0000400A
	RegisterSint11   RegisterName = 0x0000400B
	RegisterSint12   RegisterName = 0x0000400C
	RegisterSint13   RegisterName = 0x0000400D
	RegisterSint14   RegisterName = 0x0000400E
	RegisterSint15   RegisterName = 0x0000400F
	RegisterScontrol RegisterName = 0x00004010
	RegisterSversion RegisterName = 0x00004011
	RegisterSiefp    RegisterName = 0x00004012
	RegisterSimp     RegisterName = 0x00004013
	RegisterEom      RegisterName = 0x00004014
)

// Hypervisor Defined Registers
const (
	RegisterVpRuntime            RegisterName = 0x00005000
	RegisterHypercall            RegisterName = 0x00005001
	RegisterGuestOsId            RegisterName = 0x00005002
	RegisterVpAssistPage         RegisterName = 0x00005013
	RegisterReferenceTsc         RegisterName = 0x00005017
	RegisterReferenceTscSequence RegisterName = 0x0000501A
	RegisterNestedGuestState     RegisterName = 0x00005050
	RegisterNestedCurrentVmGpa   RegisterName = 0x00005051
	RegisterNestedVmxInvEpt      RegisterName = 0x00005052
	RegisterNestedVmxInvVpid     RegisterName = 0x00005053
)

// Interrupt / Event Registers
const (
	RegisterPendingInterruption         RegisterName = 0x80000000
	RegisterInterruptState              RegisterName = 0x80000001
	RegisterPendingEvent                RegisterName = 0x80000002
	RegisterPendingEvent1               RegisterName = 0x80000003
	RegisterDeliverabilityNotifications RegisterName = 0x80000004
	RegisterInternalActivityState       RegisterName = 0x80000005
	RegisterPendingDebugException       RegisterName = 0x80000006
	RegisterPendingEvent2               RegisterName = 0x80000007
	RegisterPendingEvent3               RegisterName = 0x80000008
)

func (r RegisterName) String() string {
	switch r {
	case RegisterRax:
		return "RAX"
	case RegisterRcx:
		return "RCX"
	case RegisterRdx:
		return "RDX"
	case RegisterRbx:
		return "RBX"
	case RegisterRsp:
		return "RSP"
	case RegisterRbp:
		return "RBP"
	case RegisterRsi:
		return "RSI"
	case RegisterRdi:
		return "RDI"
	case RegisterR8:
		return "R8"
	case RegisterR9:
		return "R9"
	case RegisterR10:
		return "R10"
	case RegisterR11:
		return "R11"
	case RegisterR12:
		return "R12"
	case RegisterR13:
		return "R13"
	case RegisterR14:
		return "R14"
	case RegisterR15:
		return "R15"
	case RegisterRip:
		return "RIP"
	case RegisterRflags:
		return "RFLAGS"
	case RegisterEs:
		return "ES"
	case RegisterCs:
		return "CS"
	case RegisterSs:
		return "SS"
	case RegisterDs:
		return "DS"
	case RegisterFs:
		return "FS"
	case RegisterGs:
		return "GS"
	case RegisterLdtr:
		return "LDTR"
	case RegisterTr:
		return "TR"
	case RegisterIdtr:
		return "IDTR"
	case RegisterGdtr:
		return "GDTR"
	case RegisterCr0:
		return "CR0"
	case RegisterCr2:
		return "CR2"
	case RegisterCr3:
		return "CR3"
	case RegisterCr4:
		return "CR4"
	case RegisterCr8:
		return "CR8"
	case RegisterDr0:
		return "DR0"
	case RegisterDr1:
		return "DR1"
	case RegisterDr2:
		return "DR2"
	case RegisterDr3:
		return "DR3"
	case RegisterDr6:
		return "DR6"
	case RegisterDr7:
		return "DR7"
	case RegisterXCr0:
		return "XCR0"
	case RegisterEfer:
		return "EFER"
	case RegisterTsc:
		return "TSC"
	case RegisterKernelGsBase:
		return "KernelGsBase"
	case RegisterApicBase:
		return "ApicBase"
	case RegisterPendingInterruption:
		return "PendingInterruption"
	case RegisterInterruptState:
		return "InterruptState"
	case RegisterPendingEvent:
		return "PendingEvent"
	case RegisterDeliverabilityNotifications:
		return "DeliverabilityNotifications"
	default:
		return fmt.Sprintf("RegisterName(0x%X)", uint32(r))
	}
}
