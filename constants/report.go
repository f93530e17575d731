package constants

// Source machine labels stored in report_machine.
const (
	MachineTopography      = "角膜地形图仪"
	MachineAnteriorSegment = "眼前节分析仪"
	MachineTonometer       = "非接触式眼压计"
	MachineFundusCamera    = "眼底照相机"
	MachineEndothelial     = "角膜内皮显微镜"
	MachineMedmont         = "角膜地形图仪Medmont"
	MachineMaster700       = "蔡司Master700"
	MachineUnregistered    = "未收录设备"
	MachineManualUpload    = "人工上传"
)

// ReportType is the exam category a PDF belongs to.
type ReportType string

const (
	TypeComprehensive  ReportType = "综合检查"
	TypeDryEye1        ReportType = "干眼分析1"
	TypeDryEye2        ReportType = "干眼分析2"
	TypeDryEye3        ReportType = "干眼分析3"
	TypeRefractionFour ReportType = "屈光四图"
	TypeRefractionSix  ReportType = "屈光六图"
	TypeBiomechanics   ReportType = "生物力学"
	TypeFundusPhoto    ReportType = "眼底照片"
	TypeEndothelial    ReportType = "角膜内皮细胞报告"
	TypeTopography     ReportType = "角膜地形图"
	TypeTopography1    ReportType = "角膜地形图1"
	TypeMaster700      ReportType = "Master700手术报告"
	TypeUnregistered   ReportType = "未收录设备"
)

// Master700Prefix is prepended to biometer exports that keep their own name.
const Master700Prefix = "Master700"
